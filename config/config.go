package config

import (
	"fmt"
	"os"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	JwtSecret string `yaml:"jwt_secret" json:"jwt_secret"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type NotifyConfig struct {
	MailFrom   string `yaml:"mail_from" json:"mail_from"`
	SmtpHost   string `yaml:"smtp_host" json:"smtp_host"`
	SmtpPort   int    `yaml:"smtp_port" json:"smtp_port"`
	SmtpUser   string `yaml:"smtp_user" json:"smtp_user"`
	SmtpPasswd string `yaml:"smtp_passwd" json:"smtp_passwd"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
	Workers    int    `yaml:"workers" json:"workers"`
	MaxRetry   int    `yaml:"max_retry" json:"max_retry"`
}

type AppConfig struct {
	System   SysConfig    `yaml:"system" json:"system"`
	Web      WebConfig    `yaml:"web" json:"web"`
	Database DBConfig     `yaml:"database" json:"database"`
	Logger   LogConfig    `yaml:"logger" json:"logger"`
	Notify   NotifyConfig `yaml:"notify" json:"notify"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "nextshop",
		Location: "Asia/Shanghai",
		Workdir:  "/var/nextshop",
	},
	Web: WebConfig{
		Host:      "0.0.0.0",
		Port:      1880,
		JwtSecret: "9b6de5cc-shop-1880-api-0cc32d120e69",
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "nextshop",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/nextshop/nextshop.log",
	},
	Notify: NotifyConfig{
		MailFrom: "noreply@nextshop.com",
		SmtpHost: "127.0.0.1",
		SmtpPort: 25,
		Workers:  4,
		MaxRetry: 3,
	},
}

func setEnvString(target *string, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*target = v
	}
}

func setEnvInt(target *int, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*target = cast.ToInt(v)
	}
}

func setEnvBool(target *bool, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*target = cast.ToBool(v)
	}
}

// LoadConfig reads the yaml configuration file and applies NEXTSHOP_*
// environment overrides. A missing file falls back to defaults.
func LoadConfig(cfile string) *AppConfig {
	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "config parse error: %v\n", err)
			}
		}
	}

	setEnvString(&cfg.System.Workdir, "NEXTSHOP_SYSTEM_WORKDIR")
	setEnvBool(&cfg.System.Debug, "NEXTSHOP_SYSTEM_DEBUG")
	setEnvString(&cfg.Web.Host, "NEXTSHOP_WEB_HOST")
	setEnvInt(&cfg.Web.Port, "NEXTSHOP_WEB_PORT")
	setEnvString(&cfg.Web.JwtSecret, "NEXTSHOP_WEB_JWT_SECRET")
	setEnvString(&cfg.Database.Type, "NEXTSHOP_DB_TYPE")
	setEnvString(&cfg.Database.Host, "NEXTSHOP_DB_HOST")
	setEnvInt(&cfg.Database.Port, "NEXTSHOP_DB_PORT")
	setEnvString(&cfg.Database.Name, "NEXTSHOP_DB_NAME")
	setEnvString(&cfg.Database.User, "NEXTSHOP_DB_USER")
	setEnvString(&cfg.Database.Passwd, "NEXTSHOP_DB_PWD")
	setEnvBool(&cfg.Database.Debug, "NEXTSHOP_DB_DEBUG")
	setEnvString(&cfg.Notify.SmtpHost, "NEXTSHOP_SMTP_HOST")
	setEnvInt(&cfg.Notify.SmtpPort, "NEXTSHOP_SMTP_PORT")
	setEnvString(&cfg.Notify.SmtpUser, "NEXTSHOP_SMTP_USER")
	setEnvString(&cfg.Notify.SmtpPasswd, "NEXTSHOP_SMTP_PWD")
	setEnvString(&cfg.Notify.MailFrom, "NEXTSHOP_MAIL_FROM")
	setEnvString(&cfg.Notify.WebhookURL, "NEXTSHOP_NOTIFY_WEBHOOK")

	return cfg
}
