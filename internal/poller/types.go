// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/cnc-monitor/internal/regmap"
	"github.com/tamzrod/cnc-monitor/internal/state"
)

// Client abstracts the transport operations the poller needs.
type Client interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
	Close() error
}

// Factory opens a new controller connection. ONE attempt per call; the
// poller decides when to retry.
type Factory func() (Client, error)

// Sink receives every successful snapshot (history recorder, MQTT
// publisher). Sink failures are logged, never fatal to a tick.
type Sink interface {
	Record(s state.MachineState) error
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration
	Probes   []regmap.Probe
}
