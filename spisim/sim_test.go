package spisim

import (
	"errors"
	"testing"

	"github.com/consanii/spihost"
	"github.com/consanii/spihost/rvtimer"
)

// program drives a write-enable transaction followed by a page program
// directly against the chip model.
func program(m *FlashModel, addr uint32, data []byte) {
	m.begin()
	m.feed(0x06)
	m.end()

	m.begin()
	m.feed(0x02)
	m.feed(byte(addr >> 16))
	m.feed(byte(addr >> 8))
	m.feed(byte(addr))
	for _, b := range data {
		m.feed(b)
	}
	m.end()
}

func TestFlashModelProgramWrapsPage(t *testing.T) {
	m := newFlashModel(8, 0)
	program(m, 0x10FE, []byte{0x11, 0x22, 0x33, 0x44})

	// The column wraps within the 256-byte page instead of advancing into
	// the next one.
	for addr, want := range map[uint32]byte{
		0x10FE: 0x11,
		0x10FF: 0x22,
		0x1000: 0x33,
		0x1001: 0x44,
		0x1100: 0xFF,
	} {
		if got := m.read(addr); got != want {
			t.Errorf("mem[%#06x] = %#02x, want %#02x", addr, got, want)
		}
	}
}

func TestFlashModelProgramNeedsWriteEnable(t *testing.T) {
	m := newFlashModel(8, 0)
	m.begin()
	m.feed(0x02)
	m.feed(0x00)
	m.feed(0x00)
	m.feed(0x00)
	m.feed(0x42)
	m.end()
	if got := m.read(0); got != 0xFF {
		t.Errorf("program committed without write enable: %#02x", got)
	}
}

func TestFlashModelResetSequence(t *testing.T) {
	m := newFlashModel(8, 0)

	m.begin()
	m.feed(0x06)
	m.end()
	if !m.wel {
		t.Fatal("write enable not latched")
	}

	// 0x99 on its own must be ignored.
	m.begin()
	m.feed(0x99)
	m.end()
	if !m.wel {
		t.Error("reset without enable cleared the write latch")
	}

	m.begin()
	m.feed(0x66)
	m.end()
	m.begin()
	m.feed(0x99)
	m.end()
	if m.wel {
		t.Error("reset left the write latch set")
	}
}

// Quad I/O data is gated on the QE bit and on the full dummy-clock count.
func TestFlashModelQuadGates(t *testing.T) {
	m := newFlashModel(8, 0)
	m.Load(0x20, []byte{0xA5})

	start := func() {
		m.begin()
		m.feed(0xEB)
		m.feed(0x00)
		m.feed(0x00)
		m.feed(0x20)
		m.feed(0xFF) // mode byte
	}

	start()
	m.dummy(8)
	if got := m.out(); got != 0xFF {
		t.Errorf("quad read before QE: got %#02x, want 0xFF", got)
	}
	m.end()

	m.sr2 = 1 << 1 // QE

	start()
	m.dummy(4) // half the required latency
	if got := m.out(); got != 0xFF {
		t.Errorf("quad read with short dummy phase: got %#02x, want 0xFF", got)
	}
	m.end()

	start()
	m.dummy(8)
	if got := m.out(); got != 0xA5 {
		t.Errorf("quad read: got %#02x, want 0xA5", got)
	}
	m.end()
}

// A chip-select pulse with no opcode must not re-commit the previous
// command, and it breaks a pending reset-enable pair.
func TestFlashModelEmptyTransaction(t *testing.T) {
	m := newFlashModel(8, 0)

	m.begin()
	m.feed(0x06)
	m.end()
	m.begin()
	m.feed(0x66)
	m.end()

	m.begin()
	m.end()

	m.begin()
	m.feed(0x99)
	m.end()
	if !m.wel {
		t.Error("reset executed although the enable pair was broken")
	}
}

// CONFIGOPTS and CSID are adjacent registers and must not alias.
func TestHostBusConfigOptsAndCSIDDistinct(t *testing.T) {
	sys := New(Config{})
	bus := sys.Host()

	bus.Write32(spihost.RegConfigOpts, 0x1234)
	bus.Write32(spihost.RegCSID, 1)
	if got := bus.Read32(spihost.RegConfigOpts); got != 0x1234 {
		t.Errorf("CONFIGOPTS = %#x, want 0x1234", got)
	}
	if got := bus.Read32(spihost.RegCSID); got != 1 {
		t.Errorf("CSID = %#x, want 1", got)
	}
}

func TestHostBusWatermarkInterrupt(t *testing.T) {
	sys := New(Config{})
	bus := sys.Host()

	fired := 0
	bus.SetInterruptHandler(func() { fired++ })

	bus.Write32(spihost.RegControl, spihost.CtrlSpiEnable|1<<spihost.CtrlRxWatermarkShift)
	bus.Write32(spihost.RegEventEnable, spihost.EventRxWM)
	bus.Write32(spihost.RegIntrEnable, spihost.IntrEvent)

	// Status register read: one byte out, one byte back.
	bus.Write32(spihost.RegTxData, 0x05)
	bus.Write32(spihost.RegCommand, spihost.Command{
		Len: 0, CSAAT: true, Speed: spihost.SpeedStandard, Direction: spihost.DirTxOnly,
	}.Word())
	if fired != 0 {
		t.Fatal("interrupt before any rx data")
	}
	bus.Write32(spihost.RegCommand, spihost.Command{
		Len: 0, Speed: spihost.SpeedStandard, Direction: spihost.DirRxOnly,
	}.Word())

	if fired != 1 {
		t.Fatalf("interrupt fired %d times, want 1", fired)
	}
	if bus.Read32(spihost.RegIntrState)&spihost.IntrEvent == 0 {
		t.Error("event interrupt not pending")
	}
}

func TestHostBusSwReset(t *testing.T) {
	sys := New(Config{})
	bus := sys.Host()

	bus.Write32(spihost.RegTxData, 0xDEAD)
	bus.Write32(spihost.RegControl, spihost.CtrlSpiEnable|spihost.CtrlSwReset)

	if bus.Read32(spihost.RegStatus)&spihost.StatusTxEmpty == 0 {
		t.Error("tx fifo not flushed by software reset")
	}
	if bus.Read32(spihost.RegControl)&spihost.CtrlSwReset != 0 {
		t.Error("software reset bit did not self-clear")
	}
}

func TestRxUnderflow(t *testing.T) {
	sys := New(Config{})
	h := spihost.New(sys.Host())
	if _, err := h.ReadWord(); !errors.Is(err, spihost.ErrRXUnderflow) {
		t.Errorf("got %v, want ErrRXUnderflow", err)
	}
}

// Cycle accounting: a byte costs 8 clocks at standard speed and 2 at quad,
// and each clock is 2+2*CLKDIV core cycles.
func TestCycleAccounting(t *testing.T) {
	sys := New(Config{})
	bus := sys.Host()
	bus.Write32(spihost.RegControl, spihost.CtrlSpiEnable)
	bus.Write32(spihost.RegConfigOpts, 0) // divider 0: 2 cycles per clock

	segment := func(speed spihost.Speed) uint64 {
		before := sys.Cycles()
		bus.Write32(spihost.RegCommand, spihost.Command{
			Len: 7, Speed: speed, Direction: spihost.DirTxOnly,
		}.Word())
		return sys.Cycles() - before - 1 // minus the register access itself
	}

	if got := segment(spihost.SpeedStandard); got != 8*8*2 {
		t.Errorf("standard 8-byte segment: %d cycles, want %d", got, 8*8*2)
	}
	if got := segment(spihost.SpeedQuad); got != 8*2*2 {
		t.Errorf("quad 8-byte segment: %d cycles, want %d", got, 8*2*2)
	}
}

func TestTimerCountsWhileEnabled(t *testing.T) {
	sys := New(Config{})
	tm := rvtimer.New(sys.Timer())

	tm.Reset()
	tm.SetEnabled(true)
	for i := 0; i < 10; i++ {
		sys.Host().Read32(spihost.RegStatus)
	}
	tm.SetEnabled(false)

	v := tm.Read()
	if v < 10 {
		t.Errorf("timer counted %d cycles across 10 bus accesses", v)
	}
	if again := tm.Read(); again != v {
		t.Errorf("stopped timer moved: %d then %d", v, again)
	}

	tm.Reset()
	if v := tm.Read(); v != 0 {
		t.Errorf("timer not zeroed by reset: %d", v)
	}
}
