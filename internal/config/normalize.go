// internal/config/normalize.go
package config

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Controller.Port == 0 {
		cfg.Controller.Port = 502
	}
	if cfg.Controller.TimeoutMs == 0 {
		cfg.Controller.TimeoutMs = 5000
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.History.Enabled && cfg.History.SampleMs == 0 {
		// One row per poll tick floods the database; sample at 10s unless told otherwise.
		cfg.History.SampleMs = 10000
	}

	if cfg.MQTT.Enabled && cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "cncmon"
	}
}
