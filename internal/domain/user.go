package domain

import "time"

const (
	UserLevelAdmin = "admin"
	UserLevelUser  = "user"
)

// User is an account that can place orders. Admin accounts additionally
// manage the catalog, other accounts and every order in the system.
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id,string"`
	Email     string    `gorm:"uniqueIndex;size:255" json:"email"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Password  string    `json:"-"`
	Level     string    `gorm:"index;size:20" json:"level"`
	Status    string    `gorm:"index;size:20" json:"status"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (User) TableName() string {
	return "sys_user"
}

// IsAdmin reports whether the account carries the admin level.
func (u *User) IsAdmin() bool {
	return u.Level == UserLevelAdmin
}
