// Package spihost drives a memory-mapped serial peripheral interface host
// controller of the kind found on small RISC-V microcontrollers. The
// controller executes transactions as a chain of command segments, each with
// its own length, speed (standard/dual/quad) and direction; segments with
// the chip-select-stays-asserted flag set continue the transaction on the
// wire instead of releasing the device.
//
// The register block is reached through an mmio.Bus, so the same driver runs
// against real hardware (mmio.DevMem) and against the behavioral model in
// package spisim.
//
// # References:
//
// SPI host controller
//   - [OT-SPIHOST]: OpenTitan SPI Host HWIP Technical Specification (https://opentitan.org/book/hw/ip/spi_host/)
//
// SPI Flash
//   - [W25Q128JW]: Winbond W25Q128JW Serial NOR Flash datasheet (https://www.winbond.com/resource-files/w25q128jw%20revf%2003272018%20plus.pdf)
//   - [N25Q32]: N25Q032A Micron Serial NOR Flash Memory datasheet (could not find the official public URL)
package spihost
