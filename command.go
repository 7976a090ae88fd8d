package spihost

// Speed selects how many data lines a segment drives.
type Speed uint8

const (
	SpeedStandard Speed = 0 // single line
	SpeedDual     Speed = 1
	SpeedQuad     Speed = 2
)

func (s Speed) String() string {
	switch s {
	case SpeedStandard:
		return "standard"
	case SpeedDual:
		return "dual"
	case SpeedQuad:
		return "quad"
	}
	return "invalid"
}

// Direction is a segment's transfer direction. Dummy segments clock the bus
// without moving data.
type Direction uint8

const (
	DirDummy  Direction = 0
	DirRxOnly Direction = 1
	DirTxOnly Direction = 2
	DirBidir  Direction = 3
)

func (d Direction) String() string {
	switch d {
	case DirDummy:
		return "dummy"
	case DirRxOnly:
		return "rx"
	case DirTxOnly:
		return "tx"
	case DirBidir:
		return "bidir"
	}
	return "invalid"
}

// COMMAND register field layout.
const (
	cmdLenMask    = 0xFFFF
	cmdLenShift   = 0
	cmdCSAAT      = 1 << 16
	cmdSpeedShift = 17
	cmdSpeedMask  = 0x3
	cmdDirShift   = 19
	cmdDirMask    = 0x3
)

// Command describes one transaction segment. Len is the transfer length
// minus one: bytes for data segments, clock cycles for dummy segments, so a
// zero Len moves one byte (or one cycle). CSAAT keeps the chip selected
// after the segment so the next one continues the transaction.
type Command struct {
	Len       uint16
	CSAAT     bool
	Speed     Speed
	Direction Direction
}

// Word packs the segment into its COMMAND register encoding.
func (c Command) Word() uint32 {
	w := uint32(c.Len) << cmdLenShift
	if c.CSAAT {
		w |= cmdCSAAT
	}
	w |= (uint32(c.Speed) & cmdSpeedMask) << cmdSpeedShift
	w |= (uint32(c.Direction) & cmdDirMask) << cmdDirShift
	return w
}

// ParseCommand is the inverse of Command.Word.
func ParseCommand(w uint32) Command {
	return Command{
		Len:       uint16(w >> cmdLenShift & cmdLenMask),
		CSAAT:     w&cmdCSAAT != 0,
		Speed:     Speed(w >> cmdSpeedShift & cmdSpeedMask),
		Direction: Direction(w >> cmdDirShift & cmdDirMask),
	}
}
