package spisim

import (
	"github.com/consanii/spihost"
)

// Access is one recorded register access on the host controller bus.
type Access struct {
	Write  bool
	Offset uint32
	Value  uint32
}

const fifoDepth = 64 // words

// HostBus models the SPI host controller register block with the attached
// FlashModel on chip select 0. Command segments execute synchronously
// inside the COMMAND register write, so the controller always reports ready
// and never active. It implements mmio.Bus and mmio.InterruptSource.
//
// Like the hardware it models one execution context: not safe for
// concurrent use.
type HostBus struct {
	flash *FlashModel
	clk   *clock

	intrState   uint32
	intrEnable  uint32
	control     uint32
	csid        uint32
	eventEnable uint32
	errorEnable uint32
	configopts  uint32

	txq []uint32
	rxq []uint32

	csAsserted bool
	handler    func()

	trace []Access
}

// SetInterruptHandler registers the controller interrupt line. The handler
// runs synchronously inside the register write that raises the event.
func (b *HostBus) SetInterruptHandler(h func()) { b.handler = h }

// Trace returns the register accesses recorded so far.
func (b *HostBus) Trace() []Access { return b.trace }

// ClearTrace drops the recorded accesses.
func (b *HostBus) ClearTrace() { b.trace = nil }

func (b *HostBus) watermark() int {
	return int(b.control >> spihost.CtrlRxWatermarkShift & spihost.CtrlRxWatermarkMask)
}

func (b *HostBus) Read32(offset uint32) uint32 {
	b.clk.tick(1)
	v := b.read(offset)
	b.trace = append(b.trace, Access{Offset: offset, Value: v})
	return v
}

func (b *HostBus) read(offset uint32) uint32 {
	switch offset {
	case spihost.RegIntrState:
		return b.intrState
	case spihost.RegIntrEnable:
		return b.intrEnable
	case spihost.RegControl:
		return b.control
	case spihost.RegStatus:
		return b.status()
	case spihost.RegCSID:
		return b.csid
	case spihost.RegEventEnable:
		return b.eventEnable
	case spihost.RegErrorEnable:
		return b.errorEnable
	case spihost.RegRxData:
		if len(b.rxq) == 0 {
			return 0
		}
		w := b.rxq[0]
		b.rxq = b.rxq[1:]
		return w
	case spihost.RegConfigOpts:
		return b.configopts
	}
	return 0
}

func (b *HostBus) status() uint32 {
	w := uint32(len(b.txq)) & spihost.StatusTxQDMask << spihost.StatusTxQDShift
	w |= uint32(len(b.rxq)) & spihost.StatusRxQDMask << spihost.StatusRxQDShift
	if wm := b.watermark(); wm > 0 && len(b.rxq) >= wm {
		w |= spihost.StatusRxWM
	}
	if len(b.rxq) == 0 {
		w |= spihost.StatusRxEmpty
	}
	if len(b.rxq) >= fifoDepth {
		w |= spihost.StatusRxFull
	}
	if len(b.txq) == 0 {
		w |= spihost.StatusTxEmpty
	}
	if len(b.txq) >= fifoDepth {
		w |= spihost.StatusTxFull
	}
	// Segments complete within the COMMAND write itself.
	w |= spihost.StatusReady
	return w
}

func (b *HostBus) Write32(offset uint32, value uint32) {
	b.clk.tick(1)
	b.trace = append(b.trace, Access{Write: true, Offset: offset, Value: value})
	switch offset {
	case spihost.RegIntrState:
		b.intrState &^= value // write 1 to clear
	case spihost.RegIntrEnable:
		b.intrEnable = value
	case spihost.RegControl:
		b.control = value
		if value&spihost.CtrlSwReset != 0 {
			b.txq, b.rxq = nil, nil
			b.intrState = 0
			b.control &^= spihost.CtrlSwReset
		}
	case spihost.RegCSID:
		b.csid = value
	case spihost.RegEventEnable:
		b.eventEnable = value
	case spihost.RegErrorEnable:
		b.errorEnable = value
	case spihost.RegTxData:
		if len(b.txq) < fifoDepth {
			b.txq = append(b.txq, value)
		}
	case spihost.RegConfigOpts:
		b.configopts = value
	case spihost.RegCommand:
		if b.control&spihost.CtrlSpiEnable != 0 {
			b.execute(spihost.ParseCommand(value))
		}
	}
}

// execute runs one command segment against the flash model and accounts the
// core cycles the transfer would occupy.
func (b *HostBus) execute(c spihost.Command) {
	n := int(c.Len) + 1
	if !b.csAsserted {
		b.flash.begin()
		b.csAsserted = true
	}

	var clocks int
	switch c.Direction {
	case spihost.DirTxOnly:
		clocks = n * clocksPerByte(c.Speed)
		b.shiftOut(n)
	case spihost.DirRxOnly:
		clocks = n * clocksPerByte(c.Speed)
		b.shiftIn(n)
	case spihost.DirDummy:
		clocks = n // Len counts clock cycles for dummy segments
		b.flash.dummy(n)
	case spihost.DirBidir:
		clocks = n * clocksPerByte(c.Speed)
		b.shiftOut(n)
		b.shiftIn(n)
	}

	cfg := spihost.ParseConfigOpts(b.configopts)
	b.clk.tick(uint64(clocks) * uint64(2+2*int(cfg.ClkDiv)))

	if !c.CSAAT {
		b.flash.end()
		b.csAsserted = false
	}

	if wm := b.watermark(); wm > 0 && len(b.rxq) >= wm &&
		b.eventEnable&spihost.EventRxWM != 0 {
		b.intrState |= spihost.IntrEvent
		if b.intrEnable&spihost.IntrEvent != 0 && b.handler != nil {
			b.handler()
		}
	}
}

// shiftOut feeds n bytes from the TX FIFO to the flash, least-significant
// byte of each word first.
func (b *HostBus) shiftOut(n int) {
	for n > 0 {
		var w uint32
		if len(b.txq) > 0 {
			w = b.txq[0]
			b.txq = b.txq[1:]
		}
		for j := 0; j < 4 && n > 0; j++ {
			b.flash.feed(byte(w >> (8 * j)))
			n--
		}
	}
}

// shiftIn collects n bytes from the flash into the RX FIFO, packing words
// least-significant byte first and zero-padding a partial final word.
func (b *HostBus) shiftIn(n int) {
	var w uint32
	shift := 0
	for i := 0; i < n; i++ {
		w |= uint32(b.flash.out()) << shift
		shift += 8
		if shift == 32 {
			b.pushRx(w)
			w, shift = 0, 0
		}
	}
	if shift > 0 {
		b.pushRx(w)
	}
}

func (b *HostBus) pushRx(w uint32) {
	if len(b.rxq) < fifoDepth {
		b.rxq = append(b.rxq, w)
	}
}

func clocksPerByte(s spihost.Speed) int {
	switch s {
	case spihost.SpeedDual:
		return 4
	case spihost.SpeedQuad:
		return 2
	}
	return 8
}
