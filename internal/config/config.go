package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type RedisConfig struct {
	Addr string
	TTL  string
}

type ApprovalsConfig struct {
	// AutoLimit is the amount at or below which requests auto-approve.
	AutoLimit float64
	// DualLimit is the amount above which a second (finance) level is added.
	DualLimit float64
	// DefaultApprovalLimit caps approvers without a custom role.
	DefaultApprovalLimit float64
	// EscalateAfterDays marks pending approvals overdue for escalation.
	EscalateAfterDays int
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Redis       RedisConfig
	Approvals   ApprovalsConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Redis: RedisConfig{
			Addr: v.GetString("REDIS_ADDR"),
			TTL:  v.GetString("REDIS_TTL"),
		},
		Approvals: ApprovalsConfig{
			AutoLimit:            v.GetFloat64("APPROVAL_AUTO_LIMIT"),
			DualLimit:            v.GetFloat64("APPROVAL_DUAL_LIMIT"),
			DefaultApprovalLimit: v.GetFloat64("APPROVAL_DEFAULT_LIMIT"),
			EscalateAfterDays:    v.GetInt("ESCALATE_AFTER_DAYS"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if cfg.Approvals.AutoLimit == 0 {
		cfg.Approvals.AutoLimit = 50
	}
	if cfg.Approvals.DualLimit == 0 {
		cfg.Approvals.DualLimit = 5000
	}
	if cfg.Approvals.DefaultApprovalLimit == 0 {
		cfg.Approvals.DefaultApprovalLimit = 100
	}
	if cfg.Approvals.EscalateAfterDays == 0 {
		cfg.Approvals.EscalateAfterDays = 2
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Approvals.DualLimit <= cfg.Approvals.AutoLimit {
		return fmt.Errorf("APPROVAL_DUAL_LIMIT must be greater than APPROVAL_AUTO_LIMIT")
	}
	return nil
}
