// internal/poller/builder.go
package poller

import (
	"time"

	"github.com/rs/zerolog"

	cfgpkg "github.com/tamzrod/cnc-monitor/internal/config"
	"github.com/tamzrod/cnc-monitor/internal/modbus"
	"github.com/tamzrod/cnc-monitor/internal/regmap"
	"github.com/tamzrod/cnc-monitor/internal/state"
	"github.com/tamzrod/cnc-monitor/internal/telemetry"
)

// Build constructs a Poller wired to a Modbus TCP client factory.
// The factory makes ONE connection attempt per call; the poller owns the
// client lifecycle and discards dead clients itself.
func Build(cfg *cfgpkg.Config, store *state.Store, log zerolog.Logger, metrics *telemetry.Metrics, sinks ...Sink) (*Poller, error) {
	mcfg := modbus.Config{
		Host:    cfg.Controller.Host,
		Port:    cfg.Controller.Port,
		UnitID:  cfg.Controller.UnitID,
		Timeout: time.Duration(cfg.Controller.TimeoutMs) * time.Millisecond,
	}

	factory := func() (Client, error) {
		return modbus.Dial(mcfg)
	}

	return New(
		Config{
			Interval: time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
			Probes:   selectProbes(cfg.Probes),
		},
		factory,
		store,
		log,
		metrics,
		sinks...,
	)
}

// selectProbes filters the known auxiliary probes to the configured names.
// An empty selection means all probes. Unknown names were rejected by
// config validation.
func selectProbes(names []string) []regmap.Probe {
	all := regmap.AuxProbes()
	if len(names) == 0 {
		return all
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	out := make([]regmap.Probe, 0, len(all))
	for _, p := range all {
		if want[p.Name] {
			out = append(out, p)
		}
	}
	return out
}
