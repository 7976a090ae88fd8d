// Package spisim is a behavioral model of the SPI host controller, the SoC
// control block, the platform timer and an attached W25Q-family flash chip,
// presented as mmio buses. The drivers in this module run against it
// unchanged, which is how the protocol stack is exercised off-hardware.
//
// The model is single-context, like the hardware it stands in for: all
// register accesses must come from one goroutine.
package spisim

import (
	"periph.io/x/conn/v3/physic"

	"github.com/consanii/spihost/mmio"
	"github.com/consanii/spihost/rvtimer"
	"github.com/consanii/spihost/soc"
)

// clock counts simulated core cycles. Every register access costs one
// cycle; command segments cost their wire time in core cycles.
type clock struct {
	cycles uint64
}

func (c *clock) tick(n uint64) { c.cycles += n }

// Config selects the simulated platform's boot state.
type Config struct {
	// CoreClock is the system clock frequency. Default 100MHz.
	CoreClock physic.Frequency

	// FlashMode is the boot configuration's flash routing. The default
	// routes the flash pins to the SPI host.
	FlashMode soc.FlashMode

	// DummyClocks is the quad-read latency the flash chip requires.
	// Default 8.
	DummyClocks int

	// BusyPolls is how many status reads report BUSY after each program
	// or erase. Default 2.
	BusyPolls int
}

// System is one simulated platform instance.
type System struct {
	clk   clock
	host  *HostBus
	flash *FlashModel
	soc   *socBus
	timer *timerBus
}

func New(cfg Config) *System {
	if cfg.CoreClock == 0 {
		cfg.CoreClock = 100 * physic.MegaHertz
	}
	if cfg.DummyClocks == 0 {
		cfg.DummyClocks = 8
	}
	if cfg.BusyPolls == 0 {
		cfg.BusyPolls = 2
	}

	s := &System{}
	s.flash = newFlashModel(cfg.DummyClocks, cfg.BusyPolls)
	s.host = &HostBus{flash: s.flash, clk: &s.clk}
	s.soc = &socBus{clk: &s.clk, freq: cfg.CoreClock, mode: cfg.FlashMode}
	s.timer = &timerBus{clk: &s.clk}
	return s
}

// Host returns the SPI host controller bus.
func (s *System) Host() *HostBus { return s.host }

// SoC returns the SoC control block bus.
func (s *System) SoC() mmio.Bus { return s.soc }

// Timer returns the platform timer bus.
func (s *System) Timer() mmio.Bus { return s.timer }

// Flash returns the chip model for test setup and inspection.
func (s *System) Flash() *FlashModel { return s.flash }

// Cycles returns the simulated core cycles consumed so far.
func (s *System) Cycles() uint64 { return s.clk.cycles }

// socBus models the SoC control block.
type socBus struct {
	clk  *clock
	freq physic.Frequency
	mode soc.FlashMode
}

func (b *socBus) Read32(offset uint32) uint32 {
	b.clk.tick(1)
	switch offset {
	case soc.RegSystemFreqHz:
		return uint32(b.freq / physic.Hertz)
	case soc.RegFlashMode:
		return uint32(b.mode)
	}
	return 0
}

func (b *socBus) Write32(offset uint32, value uint32) {
	b.clk.tick(1)
	// The output mux write is accepted; flash routing is fixed by the
	// boot configuration for the lifetime of the simulation.
}

// timerBus models a 64-bit timer counting core cycles while enabled.
type timerBus struct {
	clk     *clock
	enabled bool
	base    uint64
	acc     uint64
}

func (t *timerBus) value() uint64 {
	if t.enabled {
		return t.acc + t.clk.cycles - t.base
	}
	return t.acc
}

func (t *timerBus) Read32(offset uint32) uint32 {
	b := t.value()
	t.clk.tick(1)
	switch offset {
	case rvtimer.RegValueLo:
		return uint32(b)
	case rvtimer.RegValueHi:
		return uint32(b >> 32)
	case rvtimer.RegCtrl:
		if t.enabled {
			return 1
		}
	}
	return 0
}

func (t *timerBus) Write32(offset uint32, value uint32) {
	t.clk.tick(1)
	switch offset {
	case rvtimer.RegCtrl:
		if value&rvtimer.CtrlEnable != 0 && !t.enabled {
			t.base = t.clk.cycles
			t.enabled = true
		} else if value&rvtimer.CtrlEnable == 0 && t.enabled {
			t.acc += t.clk.cycles - t.base
			t.enabled = false
		}
	case rvtimer.RegValueLo, rvtimer.RegValueHi:
		// writing a counter half zeroes the accumulator
		t.acc = 0
		t.base = t.clk.cycles
	}
}
