package spihost

import (
	"errors"
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ErrZeroClock reports a clock divider request with a zero or negative
// frequency on either side.
var ErrZeroClock = errors.New("spihost: clock frequency must be positive")

// ClockDivider returns the smallest divider d such that the SPI clock
// coreClk/(2+2*d) does not exceed maxClk. A divider of 0 runs the bus at
// half the core clock. [OT-SPIHOST|CONFIGOPTS.CLKDIV]
func ClockDivider(coreClk, maxClk physic.Frequency) (uint16, error) {
	if coreClk <= 0 || maxClk <= 0 {
		return 0, ErrZeroClock
	}
	if maxClk >= coreClk/2 {
		return 0, nil
	}

	div := (int64(coreClk/maxClk) - 2) / 2
	if coreClk/physic.Frequency(2+2*div) > maxClk {
		div++ // the truncated ratio undershot the bound
	}
	if div > math.MaxUint16 {
		return 0, fmt.Errorf("spihost: divider %d for %s at core %s exceeds 16 bits", div, maxClk, coreClk)
	}
	return uint16(div), nil
}

// CONFIGOPTS register field layout.
const (
	cfgClkDivMask    = 0xFFFF
	cfgClkDivShift   = 0
	cfgCSNIdleShift  = 16
	cfgCSNTrailShift = 20
	cfgCSNLeadShift  = 24
	cfgNibbleMask    = 0xF
	cfgFullCycle     = 1 << 29
	cfgCPHA          = 1 << 30
	cfgCPOL          = 1 << 31
)

// ConfigOpts is the per-chip-select bus configuration. CSNIdle, CSNTrail and
// CSNLead are 4-bit counts of half SPI cycles the chip select stays high
// between transactions, and low before/after the first/last clock edge.
type ConfigOpts struct {
	ClkDiv   uint16
	CSNIdle  uint8
	CSNTrail uint8
	CSNLead  uint8

	// FullCycle samples rx data a full SPI cycle after shifting instead of
	// half a cycle.
	FullCycle bool

	// Mode carries clock polarity and phase. Only Mode0..Mode3 are
	// meaningful here; periph's flag bits are ignored.
	Mode spi.Mode
}

// Word packs the configuration into its CONFIGOPTS register encoding.
func (o ConfigOpts) Word() uint32 {
	w := uint32(o.ClkDiv) << cfgClkDivShift
	w |= uint32(o.CSNIdle&cfgNibbleMask) << cfgCSNIdleShift
	w |= uint32(o.CSNTrail&cfgNibbleMask) << cfgCSNTrailShift
	w |= uint32(o.CSNLead&cfgNibbleMask) << cfgCSNLeadShift
	if o.FullCycle {
		w |= cfgFullCycle
	}
	if o.Mode&spi.Mode1 != 0 { // CPHA
		w |= cfgCPHA
	}
	if o.Mode&spi.Mode2 != 0 { // CPOL
		w |= cfgCPOL
	}
	return w
}

// ParseConfigOpts is the inverse of ConfigOpts.Word.
func ParseConfigOpts(w uint32) ConfigOpts {
	o := ConfigOpts{
		ClkDiv:    uint16(w >> cfgClkDivShift & cfgClkDivMask),
		CSNIdle:   uint8(w >> cfgCSNIdleShift & cfgNibbleMask),
		CSNTrail:  uint8(w >> cfgCSNTrailShift & cfgNibbleMask),
		CSNLead:   uint8(w >> cfgCSNLeadShift & cfgNibbleMask),
		FullCycle: w&cfgFullCycle != 0,
	}
	if w&cfgCPHA != 0 {
		o.Mode |= spi.Mode1
	}
	if w&cfgCPOL != 0 {
		o.Mode |= spi.Mode2
	}
	return o
}
