package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/snksoft/crc"
)

const sectorSize = 4 << 10

func writeCommand(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	var (
		opts     targetOpts
		addr     uint64
		filename string
		noVerify bool
	)
	opts.register(fs)
	fs.Uint64Var(&addr, "addr", 0, "flash address to write")
	fs.StringVar(&filename, "f", "", "input file")
	fs.BoolVar(&noVerify, "no-verify", false, "skip the read-back check")
	fs.Parse(args)

	if filename == "" {
		fatalUsage("input file is required")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		fatalf("failed to read file: %v", err)
	}

	t, err := openTarget(&opts)
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	// Erase every sector the write touches; programming only clears bits.
	first := uint32(addr) &^ (sectorSize - 1)
	last := (uint32(addr) + uint32(len(data)) - 1) &^ (sectorSize - 1)
	for s := first; s <= last; s += sectorSize {
		if err := t.flash.Erase4KB(s); err != nil {
			fatalf("erase sector 0x%06x failed: %v", s, err)
		}
	}

	if err := t.flash.Write(uint32(addr), data); err != nil {
		fatalf("write flash failed: %v", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes at 0x%06x, crc32 %08x\n",
		len(data), addr, crc.CalculateCRC(crc.CRC32, data))

	if noVerify {
		return
	}
	check := make([]byte, len(data))
	if err := t.flash.Read(uint32(addr), check); err != nil {
		fatalf("read-back failed: %v", err)
	}
	if !bytes.Equal(check, data) {
		fatalf("read-back does not match the input")
	}
	fmt.Println("verified")
}
