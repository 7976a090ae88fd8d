// Package soc reads and configures the SoC control block: core clock
// frequency, flash access mode and the SPI output mux.
package soc

import (
	"periph.io/x/conn/v3/physic"

	"github.com/consanii/spihost/mmio"
)

// Register offsets in the SoC control block.
const (
	RegExitValid    = 0x00
	RegExitValue    = 0x04
	RegBootSelect   = 0x08
	RegFlashMode    = 0x0C
	RegSystemFreqHz = 0x10
	RegSpiOutputMux = 0x14
)

// FlashMode says which controller owns the external flash.
type FlashMode uint32

const (
	// ModeSPIHost routes the flash pins to the SPI host controller, so
	// software issues every transaction itself.
	ModeSPIHost FlashMode = 0

	// ModeMemoryMapped routes the flash through the read-only
	// memory-mapped flash controller; the SPI host cannot reach it.
	ModeMemoryMapped FlashMode = 1
)

func (m FlashMode) String() string {
	switch m {
	case ModeSPIHost:
		return "spi-host"
	case ModeMemoryMapped:
		return "memory-mapped"
	}
	return "invalid"
}

// Control owns the SoC control register block.
type Control struct {
	bus mmio.Bus
}

func NewControl(bus mmio.Bus) *Control {
	return &Control{bus: bus}
}

// Frequency returns the core clock the rest of the system is derived from.
func (c *Control) Frequency() physic.Frequency {
	return physic.Frequency(c.bus.Read32(RegSystemFreqHz)) * physic.Hertz
}

// FlashMode reports which controller the flash pins are routed to.
func (c *Control) FlashMode() FlashMode {
	return FlashMode(c.bus.Read32(RegFlashMode))
}

// SelectSPIHost points the flash pins at the SPI host controller.
func (c *Control) SelectSPIHost() {
	c.bus.Write32(RegSpiOutputMux, uint32(ModeSPIHost))
}
