// internal/codec/codec.go
package codec

import "github.com/tamzrod/cnc-monitor/internal/regmap"

// Pure register <-> value translation. No IO. No side effects.
// Malformed or missing registers are the caller's concern.

// Int32FromRegs combines two 16-bit registers into a signed 32-bit integer
// (big-endian word order: hi<<16 | lo, reinterpreted as two's complement).
func Int32FromRegs(lo, hi uint16) int32 {
	return int32(uint32(hi)<<16 | uint32(lo))
}

// Uint32FromRegs combines two 16-bit registers into an unsigned 32-bit word.
func Uint32FromRegs(lo, hi uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// RegsFromInt32 splits a signed 32-bit integer into (lo, hi) registers.
func RegsFromInt32(v int32) (lo, hi uint16) {
	u := uint32(v)
	return uint16(u), uint16(u >> 16)
}

// RegsFromUint32 splits an unsigned 32-bit word into (lo, hi) registers.
func RegsFromUint32(v uint32) (lo, hi uint16) {
	return uint16(v), uint16(v >> 16)
}

// Position decodes a split-register axis position into millimeters.
// The controller reports positions in 0.001 mm units.
func Position(lo, hi uint16) float64 {
	return float64(Int32FromRegs(lo, hi)) / 1000.0
}

// SetBit returns word with the given bit set or cleared, all other
// bits untouched. Basis for read-modify-write of packed command words.
func SetBit(word uint32, bit uint, on bool) uint32 {
	if on {
		return word | (1 << bit)
	}
	return word &^ (1 << bit)
}

// StatusFlags is the decoded machine status word.
type StatusFlags struct {
	EStopActive    bool `json:"estop_active"`
	AlarmActive    bool `json:"alarm_active"`
	CycleRunning   bool `json:"cycle_running"`
	FeedHoldActive bool `json:"feed_hold_active"`
	Homing         bool `json:"homing"`
	SpindleRunning bool `json:"spindle_running"`
	ProgramPaused  bool `json:"program_paused"`
	DoorOpen       bool `json:"door_open"`
}

// DecodeStatus extracts the flag bits of the machine status word.
func DecodeStatus(word uint16) StatusFlags {
	bit := func(b uint) bool { return word&(1<<b) != 0 }
	return StatusFlags{
		EStopActive:    bit(regmap.BitEStop),
		AlarmActive:    bit(regmap.BitAlarm),
		CycleRunning:   bit(regmap.BitCycleRunning),
		FeedHoldActive: bit(regmap.BitFeedHold),
		Homing:         bit(regmap.BitHoming),
		SpindleRunning: bit(regmap.BitSpindleRunning),
		ProgramPaused:  bit(regmap.BitProgramPaused),
		DoorOpen:       bit(regmap.BitDoorOpen),
	}
}

// StopperFlags is the decoded packed stopper status word.
type StopperFlags struct {
	StopperRaised  bool `json:"stopper_raised"`
	StopperLowered bool `json:"stopper_lowered"`
	PartPresent    bool `json:"part_present"`
}

// DecodeStopper extracts the flag bits of the packed stopper status word.
func DecodeStopper(word uint32) StopperFlags {
	bit := func(b uint) bool { return word&(1<<b) != 0 }
	return StopperFlags{
		StopperRaised:  bit(regmap.BitStopperRaised),
		StopperLowered: bit(regmap.BitStopperLowered),
		PartPresent:    bit(regmap.BitStopperPartPresent),
	}
}
