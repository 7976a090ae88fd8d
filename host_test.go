package spihost

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// fakeBus is a bare register file with no behavior behind it.
type fakeBus struct {
	regs map[uint32]uint32
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: make(map[uint32]uint32)}
}

func (b *fakeBus) Read32(offset uint32) uint32         { return b.regs[offset] }
func (b *fakeBus) Write32(offset uint32, value uint32) { b.regs[offset] = value }

// irqBus is a fakeBus that exposes an interrupt line the test can pull.
type irqBus struct {
	*fakeBus
	irq func()
}

func (b *irqBus) SetInterruptHandler(h func()) { b.irq = h }

func TestClockDivider(t *testing.T) {
	tests := []struct {
		core, max physic.Frequency
		want      uint16
	}{
		// bus at half the core clock or below the cap already
		{100 * physic.MegaHertz, 133 * physic.MegaHertz, 0},
		{100 * physic.MegaHertz, 50 * physic.MegaHertz, 0},
		{200 * physic.MegaHertz, 100 * physic.MegaHertz, 0},
		// exact divisions
		{100 * physic.MegaHertz, 25 * physic.MegaHertz, 1},
		{120 * physic.MegaHertz, 20 * physic.MegaHertz, 2},
		// truncation must round the divider up, not down
		{100 * physic.MegaHertz, 24 * physic.MegaHertz, 2},
		{100 * physic.MegaHertz, 49 * physic.MegaHertz, 1},
		{133 * physic.MegaHertz, 40 * physic.MegaHertz, 1},
	}
	for _, tc := range tests {
		got, err := ClockDivider(tc.core, tc.max)
		if err != nil {
			t.Errorf("ClockDivider(%s, %s): %v", tc.core, tc.max, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ClockDivider(%s, %s) = %d, want %d", tc.core, tc.max, got, tc.want)
		}
	}
}

// The divider must satisfy the clock bound and be the smallest value that
// does.
func TestClockDividerMinimal(t *testing.T) {
	cores := []physic.Frequency{20, 32, 50, 100, 133, 250, 999}
	maxes := []physic.Frequency{1, 2, 3, 7, 13, 25, 40, 133}
	for _, c := range cores {
		for _, m := range maxes {
			core := c * physic.MegaHertz
			max := m * physic.MegaHertz
			d, err := ClockDivider(core, max)
			if err != nil {
				t.Fatalf("ClockDivider(%s, %s): %v", core, max, err)
			}
			if got := core / physic.Frequency(2+2*int64(d)); got > max {
				t.Errorf("ClockDivider(%s, %s) = %d: bus clock %s over the cap", core, max, d, got)
			}
			if d > 0 {
				if got := core / physic.Frequency(2+2*int64(d-1)); got <= max {
					t.Errorf("ClockDivider(%s, %s) = %d: %d already satisfies the cap", core, max, d, d-1)
				}
			}
		}
	}
}

func TestClockDividerZeroClock(t *testing.T) {
	if _, err := ClockDivider(0, physic.MegaHertz); !errors.Is(err, ErrZeroClock) {
		t.Errorf("zero core clock: got %v, want ErrZeroClock", err)
	}
	if _, err := ClockDivider(physic.MegaHertz, 0); !errors.Is(err, ErrZeroClock) {
		t.Errorf("zero flash clock: got %v, want ErrZeroClock", err)
	}
}

func TestClockDividerOverflow(t *testing.T) {
	if _, err := ClockDivider(physic.GigaHertz, physic.Hertz); err == nil {
		t.Error("expected an error for a divider beyond 16 bits")
	}
}

func TestCommandWord(t *testing.T) {
	tests := []struct {
		cmd  Command
		want uint32
	}{
		{Command{Len: 0, CSAAT: false, Speed: SpeedStandard, Direction: DirTxOnly}, 2 << 19},
		{Command{Len: 3, CSAAT: true, Speed: SpeedQuad, Direction: DirTxOnly}, 3 | 1<<16 | 2<<17 | 2<<19},
		{Command{Len: 7, CSAAT: true, Speed: SpeedQuad, Direction: DirDummy}, 7 | 1<<16 | 2<<17},
		{Command{Len: 31, CSAAT: false, Speed: SpeedQuad, Direction: DirRxOnly}, 31 | 2<<17 | 1<<19},
	}
	for _, tc := range tests {
		if got := tc.cmd.Word(); got != tc.want {
			t.Errorf("%+v.Word() = %#x, want %#x", tc.cmd, got, tc.want)
		}
		if got := ParseCommand(tc.want); got != tc.cmd {
			t.Errorf("ParseCommand(%#x) = %+v, want %+v", tc.want, got, tc.cmd)
		}
	}
}

func TestConfigOptsWord(t *testing.T) {
	o := ConfigOpts{
		ClkDiv:   37,
		CSNIdle:  0xF,
		CSNTrail: 0xF,
		CSNLead:  0xF,
		Mode:     spi.Mode3,
	}
	w := o.Word()
	if got := ParseConfigOpts(w); got != o {
		t.Errorf("round trip: got %+v, want %+v", got, o)
	}
	if w&cfgCPHA == 0 || w&cfgCPOL == 0 {
		t.Errorf("Mode3 must set both CPHA and CPOL: %#x", w)
	}
	if uint16(w&cfgClkDivMask) != 37 {
		t.Errorf("divider field: %#x", w)
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	h := New(newFakeBus(), WithWaitTimeout(time.Millisecond))
	if err := h.WaitReady(); !errors.Is(err, ErrTimeout) {
		t.Errorf("WaitReady on a dead controller: got %v, want ErrTimeout", err)
	}
}

func TestSubmitCommandChecksReady(t *testing.T) {
	bus := newFakeBus()
	h := New(bus, WithWaitTimeout(time.Millisecond))
	if err := h.SubmitCommand(Command{Direction: DirTxOnly}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("submit without ready: got %v, want ErrTimeout", err)
	}
	if _, ok := bus.regs[RegCommand]; ok {
		t.Error("command register written although the controller never reported ready")
	}
}

func TestReadWordUnderflow(t *testing.T) {
	bus := newFakeBus()
	bus.regs[RegStatus] = StatusRxEmpty
	h := New(bus)
	if _, err := h.ReadWord(); !errors.Is(err, ErrRXUnderflow) {
		t.Errorf("got %v, want ErrRXUnderflow", err)
	}
}

func TestSetRxWatermarkRange(t *testing.T) {
	h := New(newFakeBus())
	if err := h.SetRxWatermark(0); err == nil {
		t.Error("watermark 0 accepted")
	}
	if err := h.SetRxWatermark(256); err == nil {
		t.Error("watermark 256 accepted")
	}
	if err := h.SetRxWatermark(8); err != nil {
		t.Errorf("watermark 8 rejected: %v", err)
	}
}

func TestWaitForCompletion(t *testing.T) {
	bus := &irqBus{fakeBus: newFakeBus()}
	h := New(bus)
	if bus.irq == nil {
		t.Fatal("interrupt handler not registered")
	}

	h.ArmCompletion()
	bus.irq()
	if err := h.WaitForCompletion(time.Second); err != nil {
		t.Fatalf("signaled completion reported %v", err)
	}

	// The interrupt path must have masked both sources again.
	if bus.regs[RegIntrEnable]&IntrEvent != 0 {
		t.Error("event interrupt still enabled after completion")
	}
	if bus.regs[RegEventEnable]&EventRxWM != 0 {
		t.Error("rx watermark event still enabled after completion")
	}
}

func TestWaitForCompletionTimeout(t *testing.T) {
	bus := &irqBus{fakeBus: newFakeBus()}
	h := New(bus)
	h.ArmCompletion()
	if err := h.WaitForCompletion(time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
}

// A spurious second interrupt must not satisfy the next transaction's wait.
func TestCompletionSignaledAtMostOnce(t *testing.T) {
	bus := &irqBus{fakeBus: newFakeBus()}
	h := New(bus)

	h.ArmCompletion()
	bus.irq()
	bus.irq()
	if err := h.WaitForCompletion(time.Millisecond); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := h.WaitForCompletion(time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("second wait consumed a duplicate signal: %v", err)
	}
}

// Polling fallback for buses that cannot deliver interrupts.
func TestWaitForCompletionPolled(t *testing.T) {
	bus := newFakeBus()
	h := New(bus)
	h.ArmCompletion()
	bus.regs[RegIntrState] = IntrEvent
	if err := h.WaitForCompletion(time.Millisecond); err != nil {
		t.Errorf("polled completion: %v", err)
	}
}
