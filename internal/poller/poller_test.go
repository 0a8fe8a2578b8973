// internal/poller/poller_test.go
package poller

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/cnc-monitor/internal/regmap"
	"github.com/tamzrod/cnc-monitor/internal/state"
)

type fakeClient struct {
	primary    []uint16
	primaryErr error
	diag       []uint16
	diagErr    error
	probeRegs  map[uint16][]uint16
	probeErr   map[uint16]error
	closed     bool
}

func (f *fakeClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	switch addr {
	case regmap.PrimaryStart:
		if f.primaryErr != nil {
			return nil, f.primaryErr
		}
		return f.primary, nil
	case regmap.DiagStart:
		if f.diagErr != nil {
			return nil, f.diagErr
		}
		if f.diag != nil {
			return f.diag, nil
		}
		return make([]uint16, qty), nil
	default:
		if err := f.probeErr[addr]; err != nil {
			return nil, err
		}
		if regs, ok := f.probeRegs[addr]; ok {
			return regs, nil
		}
		return make([]uint16, qty), nil
	}
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

// primaryRegs is a realistic primary block: cycle running, X at 1.000 mm,
// spindle 1200 RPM, feed 500, program 7, lot 3 of 10, lot id 42.
func primaryRegs() []uint16 {
	return []uint16{0b100, 1000, 0, 0, 0, 0, 0, 1200, 500, 0, 7, 3, 10, 42}
}

func newTestPoller(t *testing.T, factory Factory) (*Poller, *state.Store) {
	t.Helper()
	store := state.NewStore()
	p, err := New(
		Config{Interval: time.Second, Probes: regmap.AuxProbes()},
		factory,
		store,
		zerolog.Nop(),
		nil,
	)
	require.NoError(t, err)
	return p, store
}

func TestNewValidation(t *testing.T) {
	store := state.NewStore()
	factory := func() (Client, error) { return &fakeClient{}, nil }

	_, err := New(Config{Interval: 0}, factory, store, zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = New(Config{Interval: time.Second}, nil, store, zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = New(Config{Interval: time.Second}, factory, nil, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestTickDecodesPrimaryBlock(t *testing.T) {
	client := &fakeClient{
		primary: primaryRegs(),
		diag:    []uint16{1, 0, 30, 4217, 2},
	}
	p, store := newTestPoller(t, func() (Client, error) { return client, nil })

	p.Tick()

	snap := store.Snapshot()
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.LastError)
	assert.True(t, snap.CycleRunning)
	assert.False(t, snap.EStopActive)
	assert.Equal(t, 1.0, snap.XPos)
	assert.Equal(t, 0.0, snap.YPos)
	assert.Equal(t, uint16(1200), snap.SpindleRPM)
	assert.Equal(t, uint16(500), snap.FeedRate)
	assert.Equal(t, uint16(7), snap.ProgramNumber)
	assert.Equal(t, uint16(3), snap.LotCount)
	assert.Equal(t, uint16(10), snap.LotTarget)
	assert.Equal(t, uint16(42), snap.LotID)
	assert.Equal(t, 30.0, snap.LotProgressPct())
	assert.Equal(t, uint16(1), snap.Diag.ConnStatus)
	assert.Equal(t, uint16(4217), snap.Diag.PacketCount)
	assert.False(t, snap.LastUpdate.IsZero())
}

func TestTickReconnectsImmediatelyOnPrimaryFailure(t *testing.T) {
	bad := &fakeClient{primaryErr: errors.New("read timeout")}
	good := &fakeClient{primary: primaryRegs()}

	dials := 0
	clients := []Client{bad, bad, good}
	factory := func() (Client, error) {
		c := clients[dials]
		dials++
		return c, nil
	}

	p, store := newTestPoller(t, factory)

	// First tick: primary fails, an immediate reconnect is attempted
	// within the same tick, and the retry fails too.
	p.Tick()
	assert.Equal(t, 2, dials, "expected reconnect before the next scheduled tick")

	snap := store.Snapshot()
	assert.False(t, snap.Connected)
	assert.Contains(t, snap.LastError, "read timeout")
	assert.True(t, bad.closed)

	// Next tick recovers and clears the error.
	p.Tick()
	assert.Equal(t, 3, dials)

	snap = store.Snapshot()
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, uint16(1200), snap.SpindleRPM)
}

func TestTickConnectFailureRecorded(t *testing.T) {
	dialErr := errors.New("connection refused")
	p, store := newTestPoller(t, func() (Client, error) { return nil, dialErr })

	p.Tick()

	snap := store.Snapshot()
	assert.False(t, snap.Connected)
	assert.Contains(t, snap.LastError, "connection refused")
}

func TestDiagnosticsDegradeToZeros(t *testing.T) {
	client := &fakeClient{
		primary: primaryRegs(),
		diagErr: errors.New("illegal data address"),
	}
	p, store := newTestPoller(t, func() (Client, error) { return client, nil })

	p.Tick()

	snap := store.Snapshot()
	assert.True(t, snap.Connected, "diagnostics failure must not fail the tick")
	assert.Equal(t, state.Diagnostics{}, snap.Diag)
}

func TestAuxProbeFailureKeepsPreviousValues(t *testing.T) {
	stopperAddr := regmap.AuxProbes()[0].Start
	client := &fakeClient{
		primary:   primaryRegs(),
		probeRegs: map[uint16][]uint16{stopperAddr: {0b101, 0}},
		probeErr:  map[uint16]error{},
	}
	p, store := newTestPoller(t, func() (Client, error) { return client, nil })

	p.Tick()
	snap := store.Snapshot()
	require.Equal(t, uint32(0b101), snap.StopperWord)
	require.True(t, snap.StopperRaised)
	require.True(t, snap.PartPresent)

	// Probe starts failing: fields retain the last good values.
	client.probeErr[stopperAddr] = errors.New("illegal data address")
	p.Tick()
	snap = store.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, uint32(0b101), snap.StopperWord)
	assert.True(t, snap.StopperRaised)

	// Probe recovers with a new value.
	delete(client.probeErr, stopperAddr)
	client.probeRegs[stopperAddr] = []uint16{0b010, 0}
	p.Tick()
	snap = store.Snapshot()
	assert.Equal(t, uint32(0b010), snap.StopperWord)
	assert.True(t, snap.StopperLowered)
	assert.False(t, snap.StopperRaised)
}

func TestCycleTimeAccumulatesAcrossTicks(t *testing.T) {
	running := primaryRegs()
	idle := primaryRegs()
	idle[regmap.RegStatus] = 0

	client := &fakeClient{primary: running}
	p, store := newTestPoller(t, func() (Client, error) { return client, nil })

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base
	p.now = func() time.Time { return now }

	p.Tick()
	assert.Equal(t, 0.0, store.Snapshot().CycleTotal)

	now = base.Add(2 * time.Second)
	p.Tick()
	assert.Equal(t, 2.0, store.Snapshot().CycleTotal)
	assert.Equal(t, 2.0, store.Snapshot().CycleTime)

	client.primary = idle
	now = base.Add(3 * time.Second)
	p.Tick()
	snap := store.Snapshot()
	assert.Equal(t, 3.0, snap.CycleTotal)
	assert.Equal(t, 0.0, snap.CycleTime)

	// Second run adds on top; the total never decreases.
	client.primary = running
	now = base.Add(10 * time.Second)
	p.Tick()
	now = base.Add(11 * time.Second)
	p.Tick()
	assert.Equal(t, 4.0, store.Snapshot().CycleTotal)
}

type captureSink struct {
	got []state.MachineState
}

func (c *captureSink) Record(s state.MachineState) error {
	c.got = append(c.got, s)
	return nil
}

func TestSinksReceiveSnapshots(t *testing.T) {
	client := &fakeClient{primary: primaryRegs()}
	store := state.NewStore()
	sink := &captureSink{}

	p, err := New(
		Config{Interval: time.Second, Probes: nil},
		func() (Client, error) { return client, nil },
		store,
		zerolog.Nop(),
		nil,
		sink,
	)
	require.NoError(t, err)

	p.Tick()
	p.Tick()

	require.Len(t, sink.got, 2)
	assert.Equal(t, uint16(1200), sink.got[0].SpindleRPM)
}
