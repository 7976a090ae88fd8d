// Package rvtimer drives the platform's 64-bit free-running timer. The
// profiling harness brackets flash operations with it to count elapsed
// cycles.
package rvtimer

import "github.com/consanii/spihost/mmio"

// Register offsets in the timer block.
const (
	RegCtrl    = 0x00
	RegValueLo = 0x04
	RegValueHi = 0x08
)

const CtrlEnable = 1 << 0

// Timer owns one hardware timer register block.
type Timer struct {
	bus mmio.Bus
}

func New(bus mmio.Bus) *Timer {
	return &Timer{bus: bus}
}

// SetEnabled starts or stops the counter.
func (t *Timer) SetEnabled(on bool) {
	if on {
		t.bus.Write32(RegCtrl, CtrlEnable)
	} else {
		t.bus.Write32(RegCtrl, 0)
	}
}

// Reset stops the counter and zeroes it.
func (t *Timer) Reset() {
	t.bus.Write32(RegCtrl, 0)
	t.bus.Write32(RegValueLo, 0)
	t.bus.Write32(RegValueHi, 0)
}

// Read returns the current counter value. The high word is sampled twice to
// guard against a carry between the two 32-bit reads.
func (t *Timer) Read() uint64 {
	for {
		hi := t.bus.Read32(RegValueHi)
		lo := t.bus.Read32(RegValueLo)
		if t.bus.Read32(RegValueHi) == hi {
			return uint64(hi)<<32 | uint64(lo)
		}
	}
}
