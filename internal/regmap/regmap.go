// internal/regmap/regmap.go
package regmap

// Register map for the LNC MW2200A built-in Modbus TCP server.
// Addresses are 0-based PDU addresses. These values define the device
// contract and MUST NOT be configurable; changing them is a
// compatibility-breaking change.

// ---- PRIMARY BLOCK (holding registers) ----

// RegStatus holds the machine status word (bit flags).
const RegStatus uint16 = 0

// Axis positions are signed 32-bit values in 0.001 mm units,
// split low/high across two consecutive registers.
const (
	RegXLo uint16 = 1
	RegXHi uint16 = 2
	RegYLo uint16 = 3
	RegYHi uint16 = 4
	RegZLo uint16 = 5
	RegZHi uint16 = 6
)

const (
	RegSpindle   uint16 = 7  // RPM
	RegFeed      uint16 = 8  // mm/min
	RegAlarm     uint16 = 9  // active alarm code
	RegProgram   uint16 = 10 // active program number
	RegLotCount  uint16 = 11 // parts produced in current lot
	RegLotTarget uint16 = 12 // target parts for current lot
	RegLotID     uint16 = 13 // current lot identifier
)

// PrimaryStart / PrimaryCount cover the whole primary block in one read.
const (
	PrimaryStart uint16 = 0
	PrimaryCount uint16 = 14
)

// ---- DIAGNOSTICS BLOCK ----

// Eth_ModbusServerTCP.ini sets OpenPortResultAddr=5001 (1-based controller
// notation). Modbus PDU addressing is 0-based, so the block starts at 5000.
const (
	RegConnStatus  uint16 = 5000
	RegIdleTime    uint16 = 5002
	RegPacketCount uint16 = 5003
	RegErrorCount  uint16 = 5004
)

const (
	DiagStart uint16 = 5000
	DiagCount uint16 = 5
)

// ---- STATUS WORD BITS ----

const (
	BitEStop          uint = 0
	BitAlarm          uint = 1
	BitCycleRunning   uint = 2
	BitFeedHold       uint = 3
	BitHoming         uint = 4
	BitSpindleRunning uint = 5
	BitProgramPaused  uint = 6
	BitDoorOpen       uint = 7
)

// ---- STOPPER STATUS WORD BITS (packed 32-bit, unverified) ----

const (
	BitStopperRaised      uint = 0
	BitStopperLowered     uint = 1
	BitStopperPartPresent uint = 2
)

// ---- COIL COMMANDS ----

// Command is one allow-listed discrete output. Each command carries its
// coil address; there is no string-keyed lookup at write time.
type Command uint8

const (
	CmdCycleStart Command = iota
	CmdFeedHold
	CmdReset
	CmdSpindleCW
	CmdSpindleCCW
	CmdCoolant
	CmdEStop
	CmdLotReset

	commandCount
)

// Coil returns the discrete output address for the command.
func (c Command) Coil() uint16 { return uint16(c) }

func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "unknown"
}

var commandNames = [commandCount]string{
	"cycle_start",
	"feed_hold",
	"reset",
	"spindle_cw",
	"spindle_ccw",
	"coolant",
	"estop",
	"lot_reset",
}

// ParseCommand resolves a command name against the allow-list.
func ParseCommand(name string) (Command, bool) {
	for i, n := range commandNames {
		if n == name {
			return Command(i), true
		}
	}
	return 0, false
}

// CommandNames lists every allow-listed command name, in coil order.
func CommandNames() []string {
	out := make([]string, len(commandNames))
	copy(out, commandNames[:])
	return out
}

// ---- STOPPER COMMAND BITS ----

// StopperBit is one allow-listed bit of the packed stopper command word.
type StopperBit uint8

const (
	StopperRaise StopperBit = iota
	StopperLower
	StopperAirBlast

	stopperBitCount
)

// Bit returns the bit position inside the packed command word.
func (b StopperBit) Bit() uint { return uint(b) }

func (b StopperBit) String() string {
	if int(b) < len(stopperBitNames) {
		return stopperBitNames[b]
	}
	return "unknown"
}

var stopperBitNames = [stopperBitCount]string{
	"raise",
	"lower",
	"air_blast",
}

// ParseStopperBit resolves a stopper bit name against the allow-list.
func ParseStopperBit(name string) (StopperBit, bool) {
	for i, n := range stopperBitNames {
		if n == name {
			return StopperBit(i), true
		}
	}
	return 0, false
}

// ---- AUXILIARY PROBES ----

// Probe names. The poller decodes known probes into snapshot fields;
// the diagnostic scanner reads them verbatim.
const (
	ProbeStopperStatus  = "stopper_status"
	ProbeStopperCommand = "stopper_command"
	ProbeAbsCoords      = "abs_coords"
	ProbeSystem         = "system"
)

// StopperCmdStart is the packed stopper command word (2 registers),
// the read-modify-write target for bit-level writes.
const (
	StopperCmdStart uint16 = 102
	StopperCmdCount uint16 = 2
)

// Probe is one independent best-effort register read. Probes whose
// addresses have not been confirmed against a real controller carry
// Verified=false; that marking is surfaced in diagnostic reports.
type Probe struct {
	Name     string
	Desc     string
	Start    uint16
	Count    uint16
	Verified bool
}

// AuxProbes returns the auxiliary read list in poll order. Failure of any
// probe never fails a poll tick; the corresponding snapshot fields keep
// their previous values.
func AuxProbes() []Probe {
	return []Probe{
		{Name: ProbeStopperStatus, Desc: "packed stopper status word", Start: 100, Count: 2, Verified: false},
		{Name: ProbeStopperCommand, Desc: "packed stopper command word", Start: StopperCmdStart, Count: StopperCmdCount, Verified: false},
		{Name: ProbeAbsCoords, Desc: "absolute machine coordinates", Start: 300, Count: 6, Verified: false},
		{Name: ProbeSystem, Desc: "extended system block (G-code line)", Start: 8000, Count: 8, Verified: false},
	}
}
