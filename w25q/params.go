package w25q

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Params describes the attached flash part: clocking limits, geometry,
// quad-read latency and the datasheet operation times used to bound
// busy-waits.
type Params struct {
	Name string

	// MaxClock is the highest SPI clock the part accepts; the bus divider
	// is computed to stay at or under it.
	MaxClock physic.Frequency

	// PageSize is the program page in bytes; writes never cross it.
	PageSize int

	// DummyClocks is the number of dummy clock cycles between the
	// address/mode phase and the data phase of a quad I/O read. Parts
	// differ; keep it at or above the device minimum.
	DummyClocks int

	// QuadModeByte follows the address in a quad I/O read. Values other
	// than Fxh disable the continuous-read shortcut the part would
	// otherwise enter.
	QuadModeByte byte

	// Operation times. [W25Q128JW|9.7 AC Electrical Characteristics]
	TPP        time.Duration // page program
	TErase4KB  time.Duration
	TErase32KB time.Duration
	TErase64KB time.Duration
	TEraseChip time.Duration
}

// DefaultParams is the W25Q128JW, the part populated next to the SPI host
// on the boards this driver targets.
func DefaultParams() Params {
	return Params{
		Name:     "Winbond W25Q128JW",
		MaxClock: 133 * physic.MegaHertz,
		PageSize: 256,

		// The part needs 4; 8 keeps margin for the slower simulation
		// model of the chip.
		DummyClocks:  8,
		QuadModeByte: 0xFF,

		TPP:        3 * time.Millisecond,
		TErase4KB:  400 * time.Millisecond,
		TErase32KB: 1600 * time.Millisecond,
		TErase64KB: 2 * time.Second,
		TEraseChip: 200 * time.Second,
	}
}
