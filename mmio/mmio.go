// Package mmio provides 32-bit register window access for memory-mapped
// peripherals. A Bus covers exactly one peripheral's register block; offsets
// are relative to the block base.
package mmio

// Bus is a word-granular register window. Offsets must be 4-byte aligned.
// Register accesses never fail once the window is open; faults at open time
// are reported by the constructor of the concrete implementation.
type Bus interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// InterruptSource is implemented by buses that can deliver the peripheral's
// interrupt line. The handler runs on the goroutine that caused the
// interrupt condition (simulation) or on a dedicated service goroutine
// (hardware); it must not block.
type InterruptSource interface {
	SetInterruptHandler(func())
}
