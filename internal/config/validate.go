// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/tamzrod/cnc-monitor/internal/regmap"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Controller.Host == "" {
		return fmt.Errorf("controller: host is required")
	}
	if cfg.Controller.Port < 0 || cfg.Controller.Port > 65535 {
		return fmt.Errorf("controller: port %d out of range", cfg.Controller.Port)
	}
	if cfg.Controller.TimeoutMs < 0 {
		return fmt.Errorf("controller: timeout_ms must not be negative")
	}

	if cfg.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll: interval_ms must be > 0")
	}

	if cfg.History.Enabled {
		if cfg.History.Path == "" {
			return fmt.Errorf("history: path is required when enabled")
		}
		if cfg.History.SampleMs < 0 {
			return fmt.Errorf("history: sample_ms must not be negative")
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt: broker is required when enabled")
		}
		if cfg.MQTT.Topic == "" {
			return fmt.Errorf("mqtt: topic is required when enabled")
		}
	}

	known := make(map[string]bool)
	for _, p := range regmap.AuxProbes() {
		known[p.Name] = true
	}
	for _, name := range cfg.Probes {
		if !known[name] {
			return fmt.Errorf("probes: unknown probe %q", name)
		}
	}

	return nil
}
