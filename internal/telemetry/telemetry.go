// internal/telemetry/telemetry.go
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes monitor counters via Prometheus. All methods are nil-safe
// so components can run without telemetry wired (tests, portprobe).
type Metrics struct {
	pollTicks     prometheus.Counter
	pollErrors    prometheus.Counter
	reconnects    prometheus.Counter
	connected     prometheus.Gauge
	commandWrites *prometheus.CounterVec
	scanRuns      prometheus.Counter
}

// New registers the monitor metrics with the provided registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		pollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cncmon_poll_ticks_total",
			Help: "Number of completed poll cycles.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cncmon_poll_errors_total",
			Help: "Number of poll cycles aborted by a primary read failure.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cncmon_reconnects_total",
			Help: "Number of controller reconnection attempts.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cncmon_connected",
			Help: "Whether the poller currently holds a live controller connection.",
		}),
		commandWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cncmon_command_writes_total",
			Help: "Number of command writes issued, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		scanRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cncmon_scan_runs_total",
			Help: "Number of diagnostic scans executed.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.pollTicks, m.pollErrors, m.reconnects, m.connected, m.commandWrites, m.scanRuns,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// IncPollTick records one completed poll cycle.
func (m *Metrics) IncPollTick() {
	if m == nil {
		return
	}
	m.pollTicks.Inc()
}

// IncPollError records one aborted poll cycle.
func (m *Metrics) IncPollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

// IncReconnect records one reconnection attempt.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// SetConnected reflects the poller connection state.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// IncCommandWrite records a command write by kind ("coil", "register",
// "stopper_bit") and outcome ("ok", "invalid", "error").
func (m *Metrics) IncCommandWrite(kind, outcome string) {
	if m == nil {
		return
	}
	m.commandWrites.WithLabelValues(kind, outcome).Inc()
}

// IncScanRun records one diagnostic scan.
func (m *Metrics) IncScanRun() {
	if m == nil {
		return
	}
	m.scanRuns.Inc()
}
