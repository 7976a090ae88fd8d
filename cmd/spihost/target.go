package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/consanii/spihost"
	"github.com/consanii/spihost/mmio"
	"github.com/consanii/spihost/rvtimer"
	"github.com/consanii/spihost/soc"
	"github.com/consanii/spihost/spisim"
	"github.com/consanii/spihost/w25q"
)

// Default physical bases of the peripheral blocks in hardware mode. Each
// block gets its own page-sized /dev/mem window.
const (
	defaultSocBase   = 0x2000_0000
	defaultSpiBase   = 0x2005_0000
	defaultTimerBase = 0x2001_0000
	blockSize        = 0x1000
)

type targetOpts struct {
	sim     bool
	verbose bool

	spiBase   uint64
	socBase   uint64
	timerBase uint64
}

func (o *targetOpts) register(fs *flag.FlagSet) {
	fs.BoolVar(&o.sim, "sim", true, "run against the built-in platform simulation")
	fs.BoolVar(&o.verbose, "v", false, "log every command segment")
	fs.Uint64Var(&o.spiBase, "spi-base", defaultSpiBase, "SPI host block physical base (hardware mode)")
	fs.Uint64Var(&o.socBase, "soc-base", defaultSocBase, "SoC control block physical base (hardware mode)")
	fs.Uint64Var(&o.timerBase, "timer-base", defaultTimerBase, "timer block physical base (hardware mode)")
}

// target is one opened platform: the flash driver plus the blocks around
// it, either simulated or mapped from /dev/mem.
type target struct {
	host  *spihost.Host
	ctrl  *soc.Control
	flash *w25q.Flash
	timer *rvtimer.Timer

	sim     *spisim.System // nil in hardware mode
	closers []func() error
}

func openTarget(o *targetOpts) (*target, error) {
	logger := log.New(os.Stderr, "", 0)

	t := &target{}
	var hostOpts []spihost.Option
	if o.verbose {
		hostOpts = append(hostOpts, spihost.WithLogger(logger))
	}

	if o.sim {
		t.sim = spisim.New(spisim.Config{})
		t.host = spihost.New(t.sim.Host(), hostOpts...)
		t.ctrl = soc.NewControl(t.sim.SoC())
		t.timer = rvtimer.New(t.sim.Timer())
	} else {
		spiBus, err := mmio.OpenDevMem(o.spiBase, blockSize)
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, spiBus.Close)
		socBus, err := mmio.OpenDevMem(o.socBase, blockSize)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.closers = append(t.closers, socBus.Close)
		timerBus, err := mmio.OpenDevMem(o.timerBase, blockSize)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.closers = append(t.closers, timerBus.Close)

		t.host = spihost.New(spiBus, hostOpts...)
		t.ctrl = soc.NewControl(socBus)
		t.timer = rvtimer.New(timerBus)
	}

	flash, err := w25q.Init(t.host, t.ctrl, w25q.WithLogger(logger))
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("flash init: %w", err)
	}
	t.flash = flash
	return t, nil
}

func (t *target) Close() {
	for _, c := range t.closers {
		c()
	}
}
