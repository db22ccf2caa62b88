// Package config loads supervisor-wide defaults from the environment,
// separately from the per-topic Job Descriptors registered in code.
package config

import (
	"github.com/caarlos0/env/v10"
)

// Config holds the process-wide settings that are environment-tunable
// rather than baked into a Job Descriptor: where the master keeps its
// runtime state, and how chatty its own diagnostics are.
type Config struct {
	RuntimeDir string `env:"QSUP_RUNTIME_DIR" envDefault:"/var/run/queuesupervisor"`
	LogLevel   string `env:"QSUP_LOG_LEVEL" envDefault:"info"`
}

// Load parses Config from the process environment, applying defaults for
// anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
