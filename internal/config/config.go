package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig selects and parameterizes the authentication strategy.
// Mode is "local" (self-managed credentials and sessions in Postgres)
// or "provider" (delegate to the hosted identity platform).
type AuthConfig struct {
	Mode            string
	SessionTTL      time.Duration
	TokenLength     int
	CacheTTL        time.Duration
	LoginRateLimit  int
	LoginRateWindow time.Duration
	ProviderURL     string
	ProviderKey     string
	ProviderSecret  string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Auth             AuthConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("CHURCHCMS")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Auth.Mode != "local" && cfg.Auth.Mode != "provider" {
		return nil, fmt.Errorf("auth.mode must be local or provider, got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.Mode == "provider" && cfg.Auth.ProviderURL == "" {
		return nil, fmt.Errorf("auth.providerurl required in provider mode")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.mode", "local")
	v.SetDefault("auth.sessionttl", "168h") // 7 days
	v.SetDefault("auth.tokenlength", 32)
	v.SetDefault("auth.cachettl", "30s")
	v.SetDefault("auth.loginratelimit", 10)
	v.SetDefault("auth.loginratewindow", "1m")
}
