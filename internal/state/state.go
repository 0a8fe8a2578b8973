// internal/state/state.go
package state

import (
	"math"
	"sync"
	"time"

	"github.com/tamzrod/cnc-monitor/internal/codec"
)

// Diagnostics is the controller-side connection diagnostics block.
type Diagnostics struct {
	ConnStatus  uint16 `json:"conn_status"`
	IdleTime    uint16 `json:"idle_time"`
	PacketCount uint16 `json:"packet_count"`
	ErrorCount  uint16 `json:"error_count"`
}

// MachineState is one fully-assembled snapshot of decoded machine state.
// All value types: assignment is a deep copy. Decoded flag fields are pure
// functions of the two status words and are never set directly.
type MachineState struct {
	Connected  bool   `json:"connected"`
	StatusWord uint16 `json:"status_word"`

	XPos float64 `json:"x_pos"` // mm
	YPos float64 `json:"y_pos"`
	ZPos float64 `json:"z_pos"`

	SpindleRPM    uint16 `json:"spindle_rpm"`
	FeedRate      uint16 `json:"feed_rate"` // mm/min
	AlarmCode     uint16 `json:"alarm_code"`
	ProgramNumber uint16 `json:"program_number"`

	LotCount  uint16 `json:"lot_count"`
	LotTarget uint16 `json:"lot_target"`
	LotID     uint16 `json:"lot_id"`

	Diag Diagnostics `json:"diag"`

	codec.StatusFlags

	// Auxiliary fields (best-effort probes, unverified addresses).
	// Retain their previous values when the corresponding probe fails.
	StopperWord uint32 `json:"stopper_word"`
	codec.StopperFlags
	StopperCmdWord uint32 `json:"stopper_cmd_word"`
	AbsX      float64 `json:"abs_x"`
	AbsY      float64 `json:"abs_y"`
	AbsZ      float64 `json:"abs_z"`
	GCodeLine uint16  `json:"gcode_line"`

	// Cycle-time accounting, in seconds. CycleTotal is monotonically
	// non-decreasing for the process lifetime and resets on restart.
	CycleTime  float64 `json:"cycle_time_s"`
	CycleTotal float64 `json:"cycle_total_s"`

	LastUpdate time.Time `json:"last_update"`
	LastError  string    `json:"last_error"`
}

// LotProgressPct derives lot completion as a percentage rounded to one
// decimal place. Zero when no target is set.
func (s MachineState) LotProgressPct() float64 {
	if s.LotTarget == 0 {
		return 0
	}
	pct := float64(s.LotCount) / float64(s.LotTarget) * 100
	return math.Round(pct*10) / 10
}

// Store holds the single shared machine state snapshot. The poller is the
// only writer; any number of readers may call Snapshot concurrently.
type Store struct {
	mu  sync.RWMutex
	cur MachineState
}

// NewStore returns a store with a zero-value snapshot.
func NewStore() *Store {
	return &Store{}
}

// Replace installs a fully-assembled snapshot as current. The caller must
// assemble the complete value before calling; the swap itself is the only
// critical section.
func (st *Store) Replace(s MachineState) {
	st.mu.Lock()
	st.cur = s
	st.mu.Unlock()
}

// Snapshot returns a copy of the current state. Readers never observe a
// partially-updated snapshot and cannot mutate shared state.
func (st *Store) Snapshot() MachineState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cur
}
