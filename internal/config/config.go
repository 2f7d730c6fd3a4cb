package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         int
	MasterSecret string
	GinMode      string
	DatabaseURL  string
	TLSCertFile  string
	TLSKeyFile   string
	TokenExpiry  time.Duration
	// Presence sweep tuning.
	SweepInterval  time.Duration
	StaleThreshold time.Duration
	LogLevel       string
}

// Load reads configuration from the environment. DATABASE_URL selects the
// postgres backend; when empty the server runs on the in-memory store.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 3000)
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("TOKEN_EXPIRY_SECONDS", int((7 * 24 * time.Hour).Seconds()))
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("STALE_THRESHOLD", "10m")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := Config{
		Port:         v.GetInt("PORT"),
		MasterSecret: v.GetString("MASTER_SECRET"),
		GinMode:      v.GetString("GIN_MODE"),
		DatabaseURL:  v.GetString("DATABASE_URL"),
		TLSCertFile:  v.GetString("TLS_CERT_FILE"),
		TLSKeyFile:   v.GetString("TLS_KEY_FILE"),
		LogLevel:     v.GetString("LOG_LEVEL"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT")
	}
	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}

	seconds := v.GetInt("TOKEN_EXPIRY_SECONDS")
	if seconds <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
	}
	cfg.TokenExpiry = time.Duration(seconds) * time.Second

	var err error
	if cfg.SweepInterval, err = time.ParseDuration(v.GetString("SWEEP_INTERVAL")); err != nil || cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("invalid SWEEP_INTERVAL")
	}
	if cfg.StaleThreshold, err = time.ParseDuration(v.GetString("STALE_THRESHOLD")); err != nil || cfg.StaleThreshold <= 0 {
		return Config{}, fmt.Errorf("invalid STALE_THRESHOLD")
	}

	return cfg, nil
}
