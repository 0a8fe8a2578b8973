// internal/command/command.go
package command

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cnc-monitor/internal/codec"
	"github.com/tamzrod/cnc-monitor/internal/regmap"
	"github.com/tamzrod/cnc-monitor/internal/telemetry"
)

// Validation errors, always returned before any transport IO.
var (
	ErrInvalidCommand = errors.New("command: unknown command")
	ErrInvalidValue   = errors.New("command: invalid value")
)

// Conn is the transport contract for one short-lived write connection.
type Conn interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
	WriteCoil(addr uint16, on bool) error
	WriteRegister(addr, value uint16) error
	WriteRegisters(addr uint16, values []uint16) error
	Close() error
}

// Dialer opens a new private connection for a single command. The
// poller's connection is never reused here.
type Dialer func() (Conn, error)

// Issuer performs synchronous on-demand controller writes. Every call
// opens its own connection and closes it on all exit paths.
type Issuer struct {
	dial    Dialer
	log     zerolog.Logger
	metrics *telemetry.Metrics
}

// New creates an issuer.
func New(dial Dialer, log zerolog.Logger, metrics *telemetry.Metrics) (*Issuer, error) {
	if dial == nil {
		return nil, errors.New("command: dialer required")
	}
	return &Issuer{dial: dial, log: log, metrics: metrics}, nil
}

// Discrete writes one allow-listed coil command.
func (i *Issuer) Discrete(name string, on bool) error {
	cmd, ok := regmap.ParseCommand(name)
	if !ok {
		i.metrics.IncCommandWrite("coil", "invalid")
		return fmt.Errorf("%w: %q", ErrInvalidCommand, name)
	}

	conn, err := i.dial()
	if err != nil {
		i.metrics.IncCommandWrite("coil", "error")
		return err
	}
	defer conn.Close()

	if err := conn.WriteCoil(cmd.Coil(), on); err != nil {
		i.metrics.IncCommandWrite("coil", "error")
		return err
	}

	i.metrics.IncCommandWrite("coil", "ok")
	i.log.Info().Str("command", cmd.String()).Bool("value", on).Msg("coil command written")
	return nil
}

// WriteNumeric validates and writes a numeric register value. The value
// must be a non-negative integer; it is truncated to the 16-bit register
// width before the write. Returns the value as written.
func (i *Issuer) WriteNumeric(addr uint16, value float64) (uint16, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value != math.Trunc(value) {
		i.metrics.IncCommandWrite("register", "invalid")
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, value)
	}
	if value < 0 {
		i.metrics.IncCommandWrite("register", "invalid")
		return 0, fmt.Errorf("%w: %v is negative", ErrInvalidValue, value)
	}

	word := uint16(uint64(value) & 0xFFFF)

	conn, err := i.dial()
	if err != nil {
		i.metrics.IncCommandWrite("register", "error")
		return 0, err
	}
	defer conn.Close()

	if err := conn.WriteRegister(addr, word); err != nil {
		i.metrics.IncCommandWrite("register", "error")
		return 0, err
	}

	i.metrics.IncCommandWrite("register", "ok")
	i.log.Info().Uint16("register", addr).Uint16("value", word).Msg("register written")
	return word, nil
}

// StopperBit flips one allow-listed bit of the packed stopper command
// word via read-modify-write: read both registers, set or clear the bit,
// write both back as a single multi-register write.
//
// The transport has no compare-and-swap, so this is not atomic against
// concurrent external writers of the same word; a race can silently lose
// the other writer's bit. Accepted limitation.
func (i *Issuer) StopperBit(name string, on bool) error {
	bit, ok := regmap.ParseStopperBit(name)
	if !ok {
		i.metrics.IncCommandWrite("stopper_bit", "invalid")
		return fmt.Errorf("%w: stopper bit %q", ErrInvalidCommand, name)
	}

	conn, err := i.dial()
	if err != nil {
		i.metrics.IncCommandWrite("stopper_bit", "error")
		return err
	}
	defer conn.Close()

	regs, err := conn.ReadHoldingRegisters(regmap.StopperCmdStart, regmap.StopperCmdCount)
	if err != nil {
		i.metrics.IncCommandWrite("stopper_bit", "error")
		return err
	}
	if len(regs) < int(regmap.StopperCmdCount) {
		i.metrics.IncCommandWrite("stopper_bit", "error")
		return fmt.Errorf("command: short stopper word read: got %d registers", len(regs))
	}

	word := codec.Uint32FromRegs(regs[0], regs[1])
	lo, hi := codec.RegsFromUint32(codec.SetBit(word, bit.Bit(), on))

	if err := conn.WriteRegisters(regmap.StopperCmdStart, []uint16{lo, hi}); err != nil {
		i.metrics.IncCommandWrite("stopper_bit", "error")
		return err
	}

	i.metrics.IncCommandWrite("stopper_bit", "ok")
	i.log.Info().Str("bit", bit.String()).Bool("value", on).Msg("stopper bit written")
	return nil
}
