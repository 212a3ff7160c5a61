package config

import (
	"log"

	"go.uber.org/fx"
)

// Module provides configuration dependencies
var Module = fx.Module("config",
	fx.Provide(ProvideConfig),
)

// ProvideConfig provides the configuration instance
func ProvideConfig() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	log.Printf("configuration loaded: worker_id=%s max_sessions=%d backend=%v",
		cfg.Worker.ID, cfg.Worker.MaxSessions, cfg.Backend.RegistrationActive())

	return cfg, nil
}
