// internal/scan/scan.go
package scan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cnc-monitor/internal/regmap"
	"github.com/tamzrod/cnc-monitor/internal/telemetry"
)

// Conn is the transport contract for one scan connection.
type Conn interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)
	ReadCoils(addr, qty uint16) ([]bool, error)
	SetUnitID(id uint8)
	Close() error
}

// Dialer opens a new private connection for one scan.
type Dialer func() (Conn, error)

// Reading is one raw probe result.
type Reading struct {
	FC          uint8    `json:"fc"`
	Address     uint16   `json:"address"`
	Count       uint16   `json:"count"`
	Description string   `json:"description"`
	Values      []uint16 `json:"values"`
	Hex         string   `json:"hex"`
	Verified    bool     `json:"verified"`
}

// Report is the structured result of one diagnostic scan.
type Report struct {
	UnitID   uint8     `json:"unit_id"`
	At       time.Time `json:"at"`
	Readings []Reading `json:"readings"`
	Errors   []string  `json:"errors"`
	Hints    []string  `json:"hints"`
}

// Scanner probes the controller's register ranges to validate the address
// map against a real device. Read-only, best-effort: individual probe
// failures are recorded in the report, never fatal to the others.
type Scanner struct {
	dial    Dialer
	log     zerolog.Logger
	metrics *telemetry.Metrics
}

// New creates a scanner.
func New(dial Dialer, log zerolog.Logger, metrics *telemetry.Metrics) (*Scanner, error) {
	if dial == nil {
		return nil, errors.New("scan: dialer required")
	}
	return &Scanner{dial: dial, log: log, metrics: metrics}, nil
}

// Run executes one full scan against the given unit identifier. It fails
// only when the connection itself cannot be opened.
func (s *Scanner) Run(unitID uint8) (Report, error) {
	rep := Report{UnitID: unitID, At: time.Now()}

	conn, err := s.dial()
	if err != nil {
		return rep, err
	}
	defer conn.Close()

	conn.SetUnitID(unitID)
	s.metrics.IncScanRun()

	// Primary block under both read function codes. A controller that
	// exposes data under the "wrong" function code relative to our
	// configuration shows up as one side all-zero, the other non-zero.
	primary := s.readInto(&rep, conn, 3, regmap.PrimaryStart, regmap.PrimaryCount, "primary block (holding)", true)
	primaryIn := s.readInto(&rep, conn, 4, regmap.PrimaryStart, regmap.PrimaryCount, "primary block (input)", true)

	switch {
	case primary != nil && primaryIn != nil && allZero(primary) && !allZero(primaryIn):
		rep.Hints = append(rep.Hints, "holding registers are all zero but input registers carry data: the controller likely exposes the primary block under FC4, not FC3")
	case primary != nil && primaryIn != nil && !allZero(primary) && allZero(primaryIn):
		rep.Hints = append(rep.Hints, "primary data present under FC3 (holding registers); FC4 mirror is empty, configuration looks correct")
	}

	diag := s.readInto(&rep, conn, 3, regmap.DiagStart, regmap.DiagCount, "diagnostics block", true)

	for _, probe := range regmap.AuxProbes() {
		s.readInto(&rep, conn, 3, probe.Start, probe.Count, probe.Desc, probe.Verified)
	}

	if bits, err := conn.ReadCoils(0, 8); err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("fc1 addr=0 qty=8 (command coils): %v", err))
	} else {
		vals := make([]uint16, len(bits))
		for i, b := range bits {
			if b {
				vals[i] = 1
			}
		}
		rep.Readings = append(rep.Readings, Reading{
			FC: 1, Address: 0, Count: 8,
			Description: "command coils",
			Values:      vals,
			Hex:         hexWords(vals),
			Verified:    true,
		})
	}

	// A primary block and diagnostics block that are both all-zero is the
	// signature of a wrong unit identifier; probe one alternate.
	if primary != nil && allZero(primary) && (diag == nil || allZero(diag)) {
		alt := uint8(1)
		if unitID == 1 {
			alt = 0
		}
		conn.SetUnitID(alt)
		if regs, err := conn.ReadHoldingRegisters(regmap.PrimaryStart, regmap.PrimaryCount); err == nil && !allZero(regs) {
			rep.Hints = append(rep.Hints, fmt.Sprintf("unit %d returns all-zero data but unit %d does not: the configured unit identifier is likely wrong", unitID, alt))
		} else {
			rep.Hints = append(rep.Hints, fmt.Sprintf("unit %d returns all-zero data; alternate unit %d does not look better", unitID, alt))
		}
		conn.SetUnitID(unitID)
	}

	if hasUnverified(rep.Readings) {
		rep.Hints = append(rep.Hints, "readings marked unverified use register addresses that have not been confirmed against a real controller")
	}

	s.log.Info().
		Uint8("unit", unitID).
		Int("readings", len(rep.Readings)).
		Int("errors", len(rep.Errors)).
		Msg("diagnostic scan complete")

	return rep, nil
}

// readInto runs one probe, recording either a reading or an error.
// Returns the raw registers for follow-up checks, nil on failure.
func (s *Scanner) readInto(rep *Report, conn Conn, fc uint8, addr, qty uint16, desc string, verified bool) []uint16 {
	var regs []uint16
	var err error

	switch fc {
	case 3:
		regs, err = conn.ReadHoldingRegisters(addr, qty)
	case 4:
		regs, err = conn.ReadInputRegisters(addr, qty)
	default:
		err = fmt.Errorf("unsupported function code %d", fc)
	}

	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("fc%d addr=%d qty=%d (%s): %v", fc, addr, qty, desc, err))
		return nil
	}

	rep.Readings = append(rep.Readings, Reading{
		FC: fc, Address: addr, Count: qty,
		Description: desc,
		Values:      regs,
		Hex:         hexWords(regs),
		Verified:    verified,
	})
	return regs
}

func allZero(regs []uint16) bool {
	for _, r := range regs {
		if r != 0 {
			return false
		}
	}
	return true
}

func hasUnverified(readings []Reading) bool {
	for _, r := range readings {
		if !r.Verified {
			return true
		}
	}
	return false
}

func hexWords(regs []uint16) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = fmt.Sprintf("%04X", r)
	}
	return strings.Join(parts, " ")
}
