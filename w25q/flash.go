// Package w25q sequences W25Q-family serial NOR flash commands through a
// spihost controller: power management, standard/dual/quad reads,
// page-program writes, erases and status polling.
package w25q

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/consanii/spihost"
	"github.com/consanii/spihost/soc"
)

// Flash commands. [W25Q128JW|8.1.2 Instruction Set Table 1]
const (
	cmdReleasePowerDown = 0xAB
	cmdPowerDown        = 0xB9
	cmdRead             = 0x03
	cmdReadDualIO       = 0xBB
	cmdReadQuadIO       = 0xEB
	cmdWriteEnable      = 0x06
	cmdPageProgram      = 0x02
	cmdErase4KB         = 0x20
	cmdErase32KB        = 0x52
	cmdErase64KB        = 0xD8
	cmdEraseChip        = 0xC7
	cmdReadStatus1      = 0x05
	cmdReadStatus2      = 0x35
	cmdWriteStatus2     = 0x31
	cmdResetEnable      = 0x66
	cmdReset            = 0x99
)

// QE is bit 1 of status register 2. [W25Q128JW|7.1.4 Quad Enable]
const quadEnableBit = 1 << 1

var (
	// ErrMemoryMapped reports that the boot configuration routed the
	// flash through the memory-mapped controller, so the SPI host cannot
	// reach it.
	ErrMemoryMapped = errors.New("w25q: flash is routed to the memory-mapped controller")

	// ErrAddressRange reports an access outside the 24-bit address space.
	ErrAddressRange = errors.New("w25q: address out of 24-bit range")
)

const max24 = 1<<24 - 1 // 0xFFFFFF

// Reads are split into transactions of at most this many bytes so the RX
// FIFO never has to hold more than one transaction.
const maxReadChunk = 256

// Flash drives one flash chip on chip select 0 of a SPI host controller.
// Like the controller itself it supports one transaction at a time.
type Flash struct {
	host    *spihost.Host
	pr      Params
	log     *log.Logger
	timeout time.Duration
}

type Option func(*Flash)

// WithParams overrides the default chip parameters.
func WithParams(p Params) Option {
	return func(f *Flash) { f.pr = p }
}

// WithLogger routes verification and diagnostic output to l.
func WithLogger(l *log.Logger) Option {
	return func(f *Flash) { f.log = l }
}

// WithTimeout bounds each wait for a transaction completion interrupt.
func WithTimeout(d time.Duration) Option {
	return func(f *Flash) { f.timeout = d }
}

// Init checks the boot configuration, points the flash pins at the SPI host,
// configures the bus clock for the part, wakes the chip and enables quad
// I/O. It fails with ErrMemoryMapped when the SPI host cannot reach the
// flash in the current boot configuration.
func Init(h *spihost.Host, ctrl *soc.Control, opts ...Option) (*Flash, error) {
	f := &Flash{
		host:    h,
		pr:      DefaultParams(),
		timeout: time.Second,
	}
	for _, o := range opts {
		o(f)
	}

	if ctrl.FlashMode() == soc.ModeMemoryMapped {
		return nil, ErrMemoryMapped
	}
	ctrl.SelectSPIHost()

	h.Enable(true)
	h.OutputEnable(true)

	div, err := spihost.ClockDivider(ctrl.Frequency(), f.pr.MaxClock)
	if err != nil {
		return nil, fmt.Errorf("w25q: bus clock for %s: %w", f.pr.Name, err)
	}
	h.SetConfigOpts(spihost.ConfigOpts{
		ClkDiv:   div,
		CSNIdle:  0xF,
		CSNTrail: 0xF,
		CSNLead:  0xF,
	})
	h.SetCSID(0)

	if err := f.PowerUp(); err != nil {
		return nil, err
	}
	if err := f.quadEnable(); err != nil {
		return nil, err
	}
	return f, nil
}

// Params returns the chip parameters in use.
func (f *Flash) Params() Params { return f.pr }

// Reverse24 swaps a 24-bit address into wire order: the flash expects the
// most significant byte first, while TX FIFO words leave the controller
// least-significant byte first.
func Reverse24(addr uint32) uint32 {
	return (addr&0xFF0000)>>16 | addr&0x00FF00 | (addr&0x0000FF)<<16
}

// single submits a one-byte standard-speed command that ends its
// transaction.
func (f *Flash) single(op byte) error {
	f.host.WriteWord(uint32(op))
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       0,
		CSAAT:     false,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return err
	}
	return f.host.WaitIdle()
}

// PowerUp releases the chip from power-down. It blocks until the controller
// has clocked the command out.
func (f *Flash) PowerUp() error {
	return f.single(cmdReleasePowerDown)
}

// PowerDown puts the chip into its low-power state; only PowerUp is
// accepted afterwards.
func (f *Flash) PowerDown() error {
	return f.single(cmdPowerDown)
}

// Reset waits for any operation in progress to finish, then issues the
// software reset sequence and waits for the chip to come back.
func (f *Flash) Reset() error {
	if err := f.BusyWait(f.pr.TEraseChip); err != nil {
		return err
	}
	return f.ResetForce()
}

// ResetForce issues the software reset sequence without waiting for an
// operation in progress; that operation's data is undefined afterwards.
func (f *Flash) ResetForce() error {
	if err := f.single(cmdResetEnable); err != nil {
		return err
	}
	if err := f.single(cmdReset); err != nil {
		return err
	}
	return f.BusyWait(f.pr.TEraseChip)
}

// readRegister runs a one-byte command followed by a one-byte response
// within a single transaction.
func (f *Flash) readRegister(op byte) (byte, error) {
	if err := f.host.SetRxWatermark(1); err != nil {
		return 0, err
	}
	f.host.WriteWord(uint32(op))
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       0,
		CSAAT:     true,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return 0, err
	}
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       0,
		CSAAT:     false,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirRxOnly,
	}); err != nil {
		return 0, err
	}
	if err := f.host.WaitRxWatermark(); err != nil {
		return 0, err
	}
	w, err := f.host.ReadWord()
	return byte(w), err
}

// ReadStatus returns status register 1.
func (f *Flash) ReadStatus() (StatusRegister, error) {
	b, err := f.readRegister(cmdReadStatus1)
	return StatusRegister(b), err
}

// BusyWait polls status register 1 until the chip clears its BUSY bit, or
// until budget elapses.
func (f *Flash) BusyWait(budget time.Duration) error {
	deadline := time.Now().Add(budget)
	for {
		sr, err := f.ReadStatus()
		if err != nil {
			return err
		}
		if !sr.Busy() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("w25q: chip busy after %v: %w", budget, spihost.ErrTimeout)
		}
	}
}

func (f *Flash) writeEnable() error {
	return f.single(cmdWriteEnable)
}

// quadEnable sets the QE bit in status register 2 if the part does not
// already have it set. Quad I/O reads are ignored by the chip without it.
func (f *Flash) quadEnable() error {
	sr2, err := f.readRegister(cmdReadStatus2)
	if err != nil {
		return err
	}
	if sr2&quadEnableBit != 0 {
		return nil
	}
	if err := f.writeEnable(); err != nil {
		return err
	}
	f.host.WriteWord(uint32(cmdWriteStatus2) | uint32(sr2|quadEnableBit)<<8)
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       1,
		CSAAT:     false,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return err
	}
	if err := f.host.WaitIdle(); err != nil {
		return err
	}
	return f.BusyWait(f.pr.TPP)
}

// IssueQuadRead submits the four segments of a Fast Read Quad I/O
// transaction for n bytes at addr and arms the completion interrupt, but
// does not wait for the data: follow with the host's WaitForCompletion and
// ReadWords (or use ReadQuad, which does all three).
//
// Segment order is fixed by the command format: opcode at standard speed,
// reversed address plus mode byte at quad speed, the configured dummy
// clocks, then the receive phase. [W25Q128JW|8.2.14 Fast Read Quad I/O]
func (f *Flash) IssueQuadRead(addr uint32, n int) error {
	if addr > max24 {
		return ErrAddressRange
	}
	if n < 1 || n > maxReadChunk {
		return fmt.Errorf("w25q: quad read of %d bytes out of range", n)
	}
	if err := f.host.SetRxWatermark(words(n)); err != nil {
		return err
	}
	f.host.ArmCompletion()

	f.host.WriteWord(cmdReadQuadIO)
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       0,
		CSAAT:     true,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return err
	}

	f.host.WriteWord(Reverse24(addr) | uint32(f.pr.QuadModeByte)<<24)
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       3,
		CSAAT:     true,
		Speed:     spihost.SpeedQuad,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return err
	}

	if err := f.host.SubmitCommand(spihost.Command{
		Len:       uint16(f.pr.DummyClocks - 1),
		CSAAT:     true,
		Speed:     spihost.SpeedQuad,
		Direction: spihost.DirDummy,
	}); err != nil {
		return err
	}

	return f.host.SubmitCommand(spihost.Command{
		Len:       uint16(n - 1),
		CSAAT:     false,
		Speed:     spihost.SpeedQuad,
		Direction: spihost.DirRxOnly,
	})
}

// ReadQuad reads len(data) bytes starting at addr using Fast Read Quad I/O,
// splitting the operation into transactions of at most 256 bytes. Each
// transaction's completion is signaled by the controller's event interrupt.
func (f *Flash) ReadQuad(addr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := min(len(data), maxReadChunk)
		if err := f.IssueQuadRead(addr, chunk); err != nil {
			return err
		}
		if err := f.host.WaitForCompletion(f.timeout); err != nil {
			return fmt.Errorf("w25q: quad read at 0x%06x: %w", addr, err)
		}
		if err := f.drain(data[:chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

// ReadQuadWords is ReadQuad for word buffers.
func (f *Flash) ReadQuadWords(addr uint32, buf []uint32) error {
	data := make([]byte, len(buf)*4)
	if err := f.ReadQuad(addr, data); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = uint32(data[4*i]) | uint32(data[4*i+1])<<8 |
			uint32(data[4*i+2])<<16 | uint32(data[4*i+3])<<24
	}
	return nil
}

// ReadDual reads len(data) bytes starting at addr using Fast Read Dual I/O.
// The mode byte doubles as the part's read latency, so the transaction has
// no dummy segment.
func (f *Flash) ReadDual(addr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := min(len(data), maxReadChunk)
		if addr > max24 {
			return ErrAddressRange
		}
		if err := f.host.SetRxWatermark(words(chunk)); err != nil {
			return err
		}
		f.host.ArmCompletion()

		f.host.WriteWord(cmdReadDualIO)
		if err := f.host.SubmitCommand(spihost.Command{
			Len:       0,
			CSAAT:     true,
			Speed:     spihost.SpeedStandard,
			Direction: spihost.DirTxOnly,
		}); err != nil {
			return err
		}
		f.host.WriteWord(Reverse24(addr) | uint32(f.pr.QuadModeByte)<<24)
		if err := f.host.SubmitCommand(spihost.Command{
			Len:       3,
			CSAAT:     true,
			Speed:     spihost.SpeedDual,
			Direction: spihost.DirTxOnly,
		}); err != nil {
			return err
		}
		if err := f.host.SubmitCommand(spihost.Command{
			Len:       uint16(chunk - 1),
			CSAAT:     false,
			Speed:     spihost.SpeedDual,
			Direction: spihost.DirRxOnly,
		}); err != nil {
			return err
		}
		if err := f.host.WaitForCompletion(f.timeout); err != nil {
			return fmt.Errorf("w25q: dual read at 0x%06x: %w", addr, err)
		}
		if err := f.drain(data[:chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

// Read reads len(data) bytes starting at addr at standard speed.
func (f *Flash) Read(addr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := min(len(data), maxReadChunk)
		if addr > max24 {
			return ErrAddressRange
		}
		if err := f.host.SetRxWatermark(words(chunk)); err != nil {
			return err
		}

		f.host.WriteWord(Reverse24(addr)<<8 | cmdRead)
		if err := f.host.SubmitCommand(spihost.Command{
			Len:       3,
			CSAAT:     true,
			Speed:     spihost.SpeedStandard,
			Direction: spihost.DirTxOnly,
		}); err != nil {
			return err
		}
		if err := f.host.SubmitCommand(spihost.Command{
			Len:       uint16(chunk - 1),
			CSAAT:     false,
			Speed:     spihost.SpeedStandard,
			Direction: spihost.DirRxOnly,
		}); err != nil {
			return err
		}
		if err := f.host.WaitRxWatermark(); err != nil {
			return fmt.Errorf("w25q: read at 0x%06x: %w", addr, err)
		}
		if err := f.drain(data[:chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

// drain pops enough words from the RX FIFO to fill data, honoring a partial
// final word.
func (f *Flash) drain(data []byte) error {
	buf := make([]uint32, words(len(data)))
	if err := f.host.ReadWords(buf); err != nil {
		return err
	}
	for i, w := range buf {
		for j := 0; j < 4 && i*4+j < len(data); j++ {
			data[i*4+j] = byte(w >> (8 * j))
		}
	}
	return nil
}

// Write programs len(data) bytes starting at addr, splitting the operation
// on page boundaries. The destination range must be erased first; flash
// programming only clears bits.
func (f *Flash) Write(addr uint32, data []byte) error {
	if int(addr)+len(data) > max24+1 {
		return ErrAddressRange
	}
	for len(data) > 0 {
		chunk := f.pr.PageSize - int(addr)%f.pr.PageSize // stay inside the page
		chunk = min(chunk, len(data))
		if err := f.pageProgram(addr, data[:chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

func (f *Flash) pageProgram(addr uint32, data []byte) error {
	if err := f.writeEnable(); err != nil {
		return err
	}

	f.host.WriteWord(Reverse24(addr)<<8 | cmdPageProgram)
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       3,
		CSAAT:     true,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return err
	}

	for i := 0; i < len(data); i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < len(data); j++ {
			w |= uint32(data[i+j]) << (8 * j)
		}
		f.host.WriteWord(w)
	}
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       uint16(len(data) - 1),
		CSAAT:     false,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return err
	}
	if err := f.host.WaitIdle(); err != nil {
		return err
	}
	return f.BusyWait(f.pr.TPP)
}

func (f *Flash) erase(op byte, addr uint32, budget time.Duration) error {
	if addr > max24 {
		return ErrAddressRange
	}
	if err := f.writeEnable(); err != nil {
		return err
	}
	f.host.WriteWord(Reverse24(addr)<<8 | uint32(op))
	if err := f.host.SubmitCommand(spihost.Command{
		Len:       3,
		CSAAT:     false,
		Speed:     spihost.SpeedStandard,
		Direction: spihost.DirTxOnly,
	}); err != nil {
		return err
	}
	if err := f.host.WaitIdle(); err != nil {
		return err
	}
	return f.BusyWait(budget)
}

// Erase4KB erases the 4KB sector containing addr.
func (f *Flash) Erase4KB(addr uint32) error {
	return f.erase(cmdErase4KB, addr, f.pr.TErase4KB)
}

// Erase32KB erases the 32KB block containing addr.
func (f *Flash) Erase32KB(addr uint32) error {
	return f.erase(cmdErase32KB, addr, f.pr.TErase32KB)
}

// Erase64KB erases the 64KB block containing addr.
func (f *Flash) Erase64KB(addr uint32) error {
	return f.erase(cmdErase64KB, addr, f.pr.TErase64KB)
}

// EraseChip erases the entire chip.
func (f *Flash) EraseChip() error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.single(cmdEraseChip); err != nil {
		return err
	}
	return f.BusyWait(f.pr.TEraseChip)
}

// Verify compares read-back words against a reference through the flash's
// logger. See the package-level Verify.
func (f *Flash) Verify(addr uint32, got, want []uint32) int {
	return Verify(f.log, addr, got, want)
}

// words is the number of FIFO words covering n bytes.
func words(n int) int {
	return (n + 3) / 4
}

// Verify compares read-back words against a reference and returns the
// number of mismatching positions. Each mismatch is reported through l with
// its flash address, the value read and the value expected. Buffers of
// unequal length mismatch at every surplus position.
func Verify(l *log.Logger, addr uint32, got, want []uint32) int {
	n := min(len(got), len(want))
	errs := max(len(got), len(want)) - n
	for i := 0; i < n; i++ {
		if got[i] != want[i] {
			if l != nil {
				l.Printf("@0x%06x: 0x%08x != 0x%08x (expected)", addr+uint32(4*i), got[i], want[i])
			}
			errs++
		}
	}
	return errs
}
