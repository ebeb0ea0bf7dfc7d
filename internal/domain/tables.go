package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysOprLog{},
	// Accounts
	&User{},
	// Catalog
	&Product{},
	// Orders
	&Order{},
	&OrderItem{},
	// Notifications
	&Notification{},
}
