package mmio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is a Bus backed by a /dev/mem mapping of one peripheral's register
// block. Accesses go through sync/atomic so the compiler cannot coalesce or
// reorder them; the hardware sees every load and store.
type DevMem struct {
	f    *os.File
	mem  []byte
	size uint32
}

// OpenDevMem maps size bytes of physical address space starting at base.
// Both base and size must be page-aligned.
func OpenDevMem(base uint64, size uint32) (*DevMem, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/mem: %w", err)
	}

	mem, err := unix.Mmap(int(f.Fd()), int64(base), int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap 0x%x+0x%x: %w", base, size, err)
	}

	return &DevMem{f: f, mem: mem, size: size}, nil
}

func (d *DevMem) Read32(offset uint32) uint32 {
	return atomic.LoadUint32(d.reg(offset))
}

func (d *DevMem) Write32(offset uint32, value uint32) {
	atomic.StoreUint32(d.reg(offset), value)
}

func (d *DevMem) reg(offset uint32) *uint32 {
	if offset%4 != 0 || offset+4 > d.size {
		panic(fmt.Sprintf("mmio: bad register offset 0x%x", offset))
	}
	return (*uint32)(unsafe.Pointer(&d.mem[offset]))
}

func (d *DevMem) Close() error {
	if err := unix.Munmap(d.mem); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
