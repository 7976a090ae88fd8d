package spihost

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/consanii/spihost/mmio"
)

var (
	// ErrTimeout reports a hardware condition that did not arrive within
	// the wait budget: the controller never became ready, never went
	// idle, or the completion interrupt never fired.
	ErrTimeout = errors.New("spihost: timed out waiting for controller")

	// ErrRXUnderflow reports a read from an empty receive FIFO.
	ErrRXUnderflow = errors.New("spihost: rx fifo underflow")
)

// Host owns one SPI host controller register block. It is not safe for
// concurrent use: the controller runs one transaction at a time and the
// driver assumes a single caller.
type Host struct {
	bus  mmio.Bus
	log  *log.Logger
	wait time.Duration

	irq  bool          // bus delivers the controller interrupt
	done chan struct{} // single-slot completion signal
}

type Option func(*Host)

// WithLogger routes segment-level diagnostics to l. The default discards
// them.
func WithLogger(l *log.Logger) Option {
	return func(h *Host) { h.log = l }
}

// WithWaitTimeout sets the budget for every bounded register wait
// (ready/idle/watermark). The default is one second.
func WithWaitTimeout(d time.Duration) Option {
	return func(h *Host) { h.wait = d }
}

// New wraps the register block behind bus. If the bus can deliver the
// controller's interrupt line, completion waits block on it; otherwise they
// fall back to polling the interrupt state register.
func New(bus mmio.Bus, opts ...Option) *Host {
	h := &Host{
		bus:  bus,
		wait: time.Second,
		done: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(h)
	}
	if src, ok := bus.(mmio.InterruptSource); ok {
		h.irq = true
		src.SetInterruptHandler(h.serviceInterrupt)
	}
	return h
}

// serviceInterrupt is the event interrupt service routine. It masks both
// interrupt sources so the event cannot re-fire while unhandled, then
// signals the waiter. The channel has capacity one and the sources stay
// masked until the next arm, so at most one signal is delivered per armed
// transaction.
func (h *Host) serviceInterrupt() {
	h.EnableEventInterrupt(false)
	h.EnableRxWatermarkInterrupt(false)
	select {
	case h.done <- struct{}{}:
	default:
	}
}

// Enable turns the controller on or off.
func (h *Host) Enable(on bool) {
	h.setControl(CtrlSpiEnable, on)
}

// OutputEnable drives or releases the bus output lines.
func (h *Host) OutputEnable(on bool) {
	h.setControl(CtrlOutputEnable, on)
}

func (h *Host) setControl(bit uint32, on bool) {
	w := h.bus.Read32(RegControl)
	if on {
		w |= bit
	} else {
		w &^= bit
	}
	h.bus.Write32(RegControl, w)
}

// EnableEventInterrupt masks or unmasks the controller event interrupt.
func (h *Host) EnableEventInterrupt(on bool) {
	w := h.bus.Read32(RegIntrEnable)
	if on {
		w |= IntrEvent
	} else {
		w &^= IntrEvent
	}
	h.bus.Write32(RegIntrEnable, w)
}

// EnableRxWatermarkInterrupt selects whether crossing the RX FIFO watermark
// raises the event interrupt.
func (h *Host) EnableRxWatermarkInterrupt(on bool) {
	w := h.bus.Read32(RegEventEnable)
	if on {
		w |= EventRxWM
	} else {
		w &^= EventRxWM
	}
	h.bus.Write32(RegEventEnable, w)
}

// SetRxWatermark makes the RX FIFO event fire once that many words sit in
// the FIFO.
func (h *Host) SetRxWatermark(words int) error {
	if words < 1 || words > CtrlRxWatermarkMask {
		return fmt.Errorf("spihost: rx watermark %d out of range", words)
	}
	w := h.bus.Read32(RegControl)
	w &^= CtrlRxWatermarkMask << CtrlRxWatermarkShift
	w |= uint32(words) << CtrlRxWatermarkShift
	h.bus.Write32(RegControl, w)
	return nil
}

// SetConfigOpts writes the bus configuration register.
func (h *Host) SetConfigOpts(o ConfigOpts) {
	h.bus.Write32(RegConfigOpts, o.Word())
}

// SetCSID selects which chip the following commands address.
func (h *Host) SetCSID(csid int) {
	h.bus.Write32(RegCSID, uint32(csid))
}

// WriteWord pushes one word into the TX FIFO. Bytes leave the controller
// least-significant first.
func (h *Host) WriteWord(w uint32) {
	h.bus.Write32(RegTxData, w)
}

// ReadWord pops one word from the RX FIFO. It fails with ErrRXUnderflow if
// the FIFO is empty.
func (h *Host) ReadWord() (uint32, error) {
	if h.bus.Read32(RegStatus)&StatusRxEmpty != 0 {
		return 0, ErrRXUnderflow
	}
	return h.bus.Read32(RegRxData), nil
}

// ReadWords drains len(buf) words from the RX FIFO.
func (h *Host) ReadWords(buf []uint32) error {
	for i := range buf {
		w, err := h.ReadWord()
		if err != nil {
			return fmt.Errorf("draining word %d of %d: %w", i, len(buf), err)
		}
		buf[i] = w
	}
	return nil
}

// SubmitCommand issues one transaction segment. The controller accepts a
// new segment only when it reports ready, so the previous segment is always
// observed accepted before the command register is written again.
func (h *Host) SubmitCommand(c Command) error {
	if err := h.WaitReady(); err != nil {
		return fmt.Errorf("before %s/%s segment: %w", c.Speed, c.Direction, err)
	}
	if h.log != nil {
		h.log.Printf("segment len=%d csaat=%t speed=%s dir=%s", int(c.Len)+1, c.CSAAT, c.Speed, c.Direction)
	}
	h.bus.Write32(RegCommand, c.Word())
	return nil
}

// WaitReady blocks until the controller can accept another command segment.
func (h *Host) WaitReady() error {
	return h.pollStatus(StatusReady, true)
}

// WaitIdle blocks until the controller has finished all queued segments and
// released the bus.
func (h *Host) WaitIdle() error {
	return h.pollStatus(StatusActive, false)
}

// WaitRxWatermark blocks until the RX FIFO holds at least the configured
// watermark.
func (h *Host) WaitRxWatermark() error {
	return h.pollStatus(StatusRxWM, true)
}

func (h *Host) pollStatus(mask uint32, set bool) error {
	deadline := time.Now().Add(h.wait)
	for {
		if h.bus.Read32(RegStatus)&mask != 0 == set {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
	}
}

// ArmCompletion prepares a completion wait for the next transaction: any
// stale signal is dropped, the pending event is cleared, and both the event
// interrupt and its RX-watermark source are unmasked. Call it before the
// final segment of the transaction is submitted.
func (h *Host) ArmCompletion() {
	select {
	case <-h.done:
	default:
	}
	h.bus.Write32(RegIntrState, IntrEvent)
	h.EnableRxWatermarkInterrupt(true)
	h.EnableEventInterrupt(true)
}

// WaitForCompletion blocks until the armed transaction raises its event
// interrupt, or until timeout elapses, in which case it reports ErrTimeout.
// Buses without interrupt delivery are polled instead.
func (h *Host) WaitForCompletion(timeout time.Duration) error {
	if !h.irq {
		deadline := time.Now().Add(timeout)
		for h.bus.Read32(RegIntrState)&IntrEvent == 0 {
			if !time.Now().Before(deadline) {
				return ErrTimeout
			}
		}
		h.EnableEventInterrupt(false)
		h.EnableRxWatermarkInterrupt(false)
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}
