// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cnc-monitor/internal/codec"
	"github.com/tamzrod/cnc-monitor/internal/cycletime"
	"github.com/tamzrod/cnc-monitor/internal/regmap"
	"github.com/tamzrod/cnc-monitor/internal/state"
	"github.com/tamzrod/cnc-monitor/internal/telemetry"
)

// Poller owns the long-lived controller connection and is the only writer
// of the shared state store. Failures never propagate out of the loop;
// they are recorded into the store and drive a reconnect.
type Poller struct {
	cfg     Config
	factory Factory
	store   *state.Store
	log     zerolog.Logger
	metrics *telemetry.Metrics
	sinks   []Sink

	client Client
	cycle  cycletime.Tracker
	now    func() time.Time
}

// New creates a poller with immutable config.
func New(cfg Config, factory Factory, store *state.Store, log zerolog.Logger, metrics *telemetry.Metrics, sinks ...Sink) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if factory == nil {
		return nil, errors.New("poller: client factory required")
	}
	if store == nil {
		return nil, errors.New("poller: state store required")
	}
	return &Poller{
		cfg:     cfg,
		factory: factory,
		store:   store,
		log:     log,
		metrics: metrics,
		sinks:   sinks,
		now:     time.Now,
	}, nil
}

// Tick performs one scheduled cycle: connect if needed, poll, and on a
// primary read failure reconnect immediately instead of waiting out the
// remainder of the period.
func (p *Poller) Tick() {
	if p.client == nil {
		if !p.connect() {
			return
		}
	}

	if err := p.pollOnce(); err != nil {
		p.fail(err)
		if p.connect() {
			if err := p.pollOnce(); err != nil {
				p.fail(err)
			}
		}
	}
}

// connect discards any dead client and makes one connection attempt.
// Failure is recorded in the store; the next tick retries. No backoff:
// the controller is LAN-local and expected available.
func (p *Poller) connect() bool {
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}

	p.metrics.IncReconnect()

	client, err := p.factory()
	if err != nil {
		p.log.Warn().Err(err).Msg("controller connect failed")
		p.recordFailure(err)
		return false
	}

	p.client = client
	p.metrics.SetConnected(true)
	p.log.Info().Msg("controller connected")
	return true
}

// fail records a fatal tick error and drops the connection.
func (p *Poller) fail(err error) {
	p.log.Warn().Err(err).Msg("poll cycle failed")
	p.metrics.IncPollError()
	p.recordFailure(err)
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

// recordFailure marks the store disconnected, keeping the rest of the
// last good snapshot visible to readers.
func (p *Poller) recordFailure(err error) {
	snap := p.store.Snapshot()
	snap.Connected = false
	snap.LastError = err.Error()
	p.store.Replace(snap)
	p.metrics.SetConnected(false)
}

// pollOnce performs one full read-decode-replace cycle. Only a primary
// block failure is fatal; the diagnostics block degrades to zeros and the
// auxiliary probes keep their previous values on error.
func (p *Poller) pollOnce() error {
	now := p.now()

	regs, err := p.client.ReadHoldingRegisters(regmap.PrimaryStart, regmap.PrimaryCount)
	if err != nil {
		return err
	}
	if len(regs) < int(regmap.PrimaryCount) {
		return fmt.Errorf("poller: short primary read: got %d registers", len(regs))
	}

	prev := p.store.Snapshot()
	snap := decodePrimary(regs, now)

	if diag, err := p.client.ReadHoldingRegisters(regmap.DiagStart, regmap.DiagCount); err == nil && len(diag) >= int(regmap.DiagCount) {
		snap.Diag = state.Diagnostics{
			ConnStatus:  diag[regmap.RegConnStatus-regmap.DiagStart],
			IdleTime:    diag[regmap.RegIdleTime-regmap.DiagStart],
			PacketCount: diag[regmap.RegPacketCount-regmap.DiagStart],
			ErrorCount:  diag[regmap.RegErrorCount-regmap.DiagStart],
		}
	} else if err != nil {
		p.log.Debug().Err(err).Msg("diagnostics block read degraded to zeros")
	}

	p.applyProbes(&snap, prev)

	p.cycle.Update(snap.CycleRunning, now)
	snap.CycleTime = p.cycle.Current(now).Seconds()
	snap.CycleTotal = p.cycle.Total(now).Seconds()

	p.store.Replace(snap)
	p.metrics.IncPollTick()

	for _, s := range p.sinks {
		if err := s.Record(snap); err != nil {
			p.log.Warn().Err(err).Msg("snapshot sink failed")
		}
	}

	return nil
}

// decodePrimary translates the primary register block into a snapshot.
func decodePrimary(regs []uint16, now time.Time) state.MachineState {
	snap := state.MachineState{
		Connected:     true,
		StatusWord:    regs[regmap.RegStatus],
		XPos:          codec.Position(regs[regmap.RegXLo], regs[regmap.RegXHi]),
		YPos:          codec.Position(regs[regmap.RegYLo], regs[regmap.RegYHi]),
		ZPos:          codec.Position(regs[regmap.RegZLo], regs[regmap.RegZHi]),
		SpindleRPM:    regs[regmap.RegSpindle],
		FeedRate:      regs[regmap.RegFeed],
		AlarmCode:     regs[regmap.RegAlarm],
		ProgramNumber: regs[regmap.RegProgram],
		LotCount:      regs[regmap.RegLotCount],
		LotTarget:     regs[regmap.RegLotTarget],
		LotID:         regs[regmap.RegLotID],
		LastUpdate:    now,
	}
	snap.StatusFlags = codec.DecodeStatus(snap.StatusWord)
	return snap
}

// applyProbes runs each auxiliary probe independently. Every probe gets an
// explicit result; on error the assembler keeps the previous snapshot's
// values for exactly the fields that probe owns.
func (p *Poller) applyProbes(snap *state.MachineState, prev state.MachineState) {
	for _, probe := range p.cfg.Probes {
		regs, err := p.client.ReadHoldingRegisters(probe.Start, probe.Count)
		if err != nil || len(regs) < int(probe.Count) {
			if err != nil {
				p.log.Debug().Err(err).Str("probe", probe.Name).Msg("auxiliary probe failed, keeping previous values")
			}
			carryProbe(snap, prev, probe.Name)
			continue
		}

		switch probe.Name {
		case regmap.ProbeStopperStatus:
			snap.StopperWord = codec.Uint32FromRegs(regs[0], regs[1])
			snap.StopperFlags = codec.DecodeStopper(snap.StopperWord)
		case regmap.ProbeStopperCommand:
			snap.StopperCmdWord = codec.Uint32FromRegs(regs[0], regs[1])
		case regmap.ProbeAbsCoords:
			snap.AbsX = codec.Position(regs[0], regs[1])
			snap.AbsY = codec.Position(regs[2], regs[3])
			snap.AbsZ = codec.Position(regs[4], regs[5])
		case regmap.ProbeSystem:
			snap.GCodeLine = regs[0]
		}
	}
}

// carryProbe keeps the previous values of the fields owned by one probe.
func carryProbe(snap *state.MachineState, prev state.MachineState, name string) {
	switch name {
	case regmap.ProbeStopperStatus:
		snap.StopperWord = prev.StopperWord
		snap.StopperFlags = prev.StopperFlags
	case regmap.ProbeStopperCommand:
		snap.StopperCmdWord = prev.StopperCmdWord
	case regmap.ProbeAbsCoords:
		snap.AbsX = prev.AbsX
		snap.AbsY = prev.AbsY
		snap.AbsZ = prev.AbsZ
	case regmap.ProbeSystem:
		snap.GCodeLine = prev.GCodeLine
	}
}
