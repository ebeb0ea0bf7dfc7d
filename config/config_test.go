package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig("")
	if cfg.System.Appid != "nextshop" {
		t.Errorf("appid = %q, want nextshop", cfg.System.Appid)
	}
	if cfg.Web.Port != 1880 {
		t.Errorf("web port = %d, want 1880", cfg.Web.Port)
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("database type = %q, want postgres", cfg.Database.Type)
	}
	if cfg.Notify.MaxRetry != 3 {
		t.Errorf("notify max_retry = %d, want 3", cfg.Notify.MaxRetry)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), "nextshop.yml")
	content := `
system:
  appid: shoptest
  workdir: /tmp/shoptest
web:
  port: 2080
database:
  type: sqlite
  name: /tmp/shoptest/shop.db
notify:
  mail_from: orders@shoptest.local
`
	if err := os.WriteFile(cfile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(cfile)
	if cfg.System.Appid != "shoptest" {
		t.Errorf("appid = %q, want shoptest", cfg.System.Appid)
	}
	if cfg.Web.Port != 2080 {
		t.Errorf("web port = %d, want 2080", cfg.Web.Port)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("database type = %q, want sqlite", cfg.Database.Type)
	}
	if cfg.Notify.MailFrom != "orders@shoptest.local" {
		t.Errorf("mail_from = %q, want orders@shoptest.local", cfg.Notify.MailFrom)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("web host = %q, want default 0.0.0.0", cfg.Web.Host)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), "nextshop.yml")
	content := `
web:
  port: 2080
database:
  host: db.internal
`
	if err := os.WriteFile(cfile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NEXTSHOP_WEB_PORT", "3090")
	t.Setenv("NEXTSHOP_DB_HOST", "db.override")
	t.Setenv("NEXTSHOP_SYSTEM_DEBUG", "true")

	cfg := LoadConfig(cfile)
	if cfg.Web.Port != 3090 {
		t.Errorf("web port = %d, want env override 3090", cfg.Web.Port)
	}
	if cfg.Database.Host != "db.override" {
		t.Errorf("db host = %q, want env override db.override", cfg.Database.Host)
	}
	if !cfg.System.Debug {
		t.Error("system debug not set from env")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg := LoadConfig("/nonexistent/nextshop.yml")
	if cfg.System.Appid != "nextshop" {
		t.Errorf("appid = %q, want default nextshop", cfg.System.Appid)
	}
}
