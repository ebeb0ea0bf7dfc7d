package app

import (
	"sync"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/talkincode/nextshop/internal/domain"
)

const configCacheTTL = 30 * time.Second

// ConfigManager reads sys_config settings with a short-lived cache so hot
// paths don't hit the database on every call.
type ConfigManager struct {
	db    *gorm.DB
	mu    sync.RWMutex
	cache map[string]cachedValue
}

type cachedValue struct {
	value    string
	expireAt time.Time
}

func NewConfigManager(db *gorm.DB) *ConfigManager {
	return &ConfigManager{
		db:    db,
		cache: make(map[string]cachedValue),
	}
}

func (m *ConfigManager) GetString(category, name string) string {
	key := category + "." + name

	m.mu.RLock()
	cv, okCached := m.cache[key]
	m.mu.RUnlock()
	if okCached && time.Now().Before(cv.expireAt) {
		return cv.value
	}

	var row domain.SysConfig
	value := ""
	if err := m.db.Where("type = ? and name = ?", category, name).First(&row).Error; err == nil {
		value = row.Value
	}

	m.mu.Lock()
	m.cache[key] = cachedValue{value: value, expireAt: time.Now().Add(configCacheTTL)}
	m.mu.Unlock()
	return value
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.GetString(category, name))
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.GetString(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.GetString(category, name))
}
