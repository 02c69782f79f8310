package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/goIdentity/permission"
	"github.com/caarlos0/env/v11"
)

// serviceConfig is the process-level configuration. Engine tuning is read
// separately by goIdentity.LoadConfigFromEnv.
type serviceConfig struct {
	Addr            string        `env:"IDENTITYD_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"IDENTITYD_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"IDENTITYD_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// DatabaseDialect is postgres or sqlite.
	DatabaseDialect string `env:"IDENTITYD_DB_DIALECT" envDefault:"sqlite"`
	DatabaseURL     string `env:"IDENTITYD_DATABASE_URL" envDefault:"identity.db"`
	SkipMigrations  bool   `env:"IDENTITYD_SKIP_MIGRATIONS"`

	// RedisAddr empty starts an in-process miniredis, for local runs only.
	RedisAddr     string `env:"IDENTITYD_REDIS_ADDR"`
	RedisPassword string `env:"IDENTITYD_REDIS_PASSWORD"`
	RedisDB       int    `env:"IDENTITYD_REDIS_DB"`

	RolesFile string `env:"IDENTITYD_ROLES_FILE"`

	RateLimitPerMinute int `env:"IDENTITYD_RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	RateLimitBurst     int `env:"IDENTITYD_RATE_LIMIT_BURST" envDefault:"30"`
}

func loadServiceConfig() (serviceConfig, error) {
	var cfg serviceConfig
	if err := env.Parse(&cfg); err != nil {
		return serviceConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseDialect != "postgres" && cfg.DatabaseDialect != "sqlite" {
		return serviceConfig{}, fmt.Errorf("IDENTITYD_DB_DIALECT must be postgres or sqlite, got %q", cfg.DatabaseDialect)
	}
	if cfg.RateLimitPerMinute < 0 || cfg.RateLimitBurst < 0 {
		return serviceConfig{}, fmt.Errorf("rate limit settings must not be negative")
	}
	return cfg, nil
}

// loadRoles reads a role table from a JSON file shaped like
// permission.Definition, or returns the built-in table when path is empty.
func loadRoles(path string) (*permission.Config, error) {
	if path == "" {
		return permission.NewConfig(defaultRoles())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	var def permission.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode roles file: %w", err)
	}
	return permission.NewConfig(def)
}

func defaultRoles() permission.Definition {
	return permission.Definition{
		Resources: map[string]string{
			"employee": "hr",
			"leave":    "hr",
			"role":     "admin",
		},
		DefaultRole: "employee",
		Roles: []permission.Role{
			{
				ID: "admin", Name: "Administrator", Level: 100,
				Modules: []string{"hr", "admin"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee"},
					{Action: "update", Resource: "employee"},
					{Action: "approve", Resource: "leave"},
					{Action: "manage", Resource: "role"},
				},
			},
			{
				ID: "manager", Name: "Manager", Level: 50,
				Modules: []string{"hr"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee", Scope: permission.ScopeDepartment},
					{Action: "approve", Resource: "leave", Scope: permission.ScopeTeam},
				},
			},
			{
				ID: "employee", Name: "Employee", Level: 10,
				Modules: []string{"hr"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee", Scope: permission.ScopeOwn},
					{Action: "create", Resource: "leave", Scope: permission.ScopeOwn},
				},
			},
		},
	}
}
