package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path   string `mapstructure:"path"`
	LogSQL bool   `mapstructure:"log_sql"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type PortalConfig struct {
	ProviderURL    string `mapstructure:"provider_url"`
	PortalURL      string `mapstructure:"portal_url"`
	PortalPattern  string `mapstructure:"portal_pattern"`
	LedgerURL      string `mapstructure:"ledger_url"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	LandTimeoutSec int    `mapstructure:"landing_timeout_seconds"`
}

type SessionConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type SyncConfig struct {
	LookbackMonths int `mapstructure:"lookback_months"`
}

type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	UserAgent string `mapstructure:"user_agent"`
}

type MenuConfig struct {
	URL  string `mapstructure:"url"`
	Cron string `mapstructure:"cron"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Portal   PortalConfig   `mapstructure:"portal"`
	Session  SessionConfig  `mapstructure:"session"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Menu     MenuConfig     `mapstructure:"menu"`
}

func (c Config) SessionTTL() time.Duration {
	if c.Session.TTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// loadConfig reads config.yaml and LIONLINK_-prefixed environment overrides.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("LIONLINK")
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8090")
	v.SetDefault("database.path", "lionlink.db")
	v.SetDefault("jwt.issuer", "lionlink")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("portal.provider_url", "https://webaccess.psu.edu/login")
	v.SetDefault("portal.portal_url", "https://idcard.psu.edu/lioncash")
	v.SetDefault("portal.portal_pattern", "idcard.psu.edu")
	v.SetDefault("portal.ledger_url", "https://idcard.psu.edu/lioncash/transactions")
	v.SetDefault("session.ttl_seconds", 120)
	v.SetDefault("sync.lookback_months", 6)
	v.SetDefault("browser.headless", true)
	v.SetDefault("menu.cron", "0 6 * * *")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
