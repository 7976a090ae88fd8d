package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand"
)

// profileCommand times write and read-back cycles of growing length with
// the platform timer and checks every iteration for correctness. Cycle
// counts go to stdout as "W<cycles>, R<cycles>," pairs, one pair per
// length.
func profileCommand(args []string) {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	var (
		opts    targetOpts
		addr    uint64
		maxLen  int
		mode    string
		seed    int64
	)
	opts.register(fs)
	fs.Uint64Var(&addr, "addr", 0x8500, "flash address to exercise")
	fs.IntVar(&maxLen, "max", 1024, "largest buffer length in bytes")
	fs.StringVar(&mode, "mode", "standard", "read mode: standard or quad")
	fs.Int64Var(&seed, "seed", 1, "test buffer generator seed")
	fs.Parse(args)

	if maxLen < 0 {
		fatalUsage("-max must be non-negative, got %d", maxLen)
	}
	if mode != "standard" && mode != "quad" {
		fatalUsage("unknown mode %q", mode)
	}

	t, err := openTarget(&opts)
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	buf := make([]byte, maxLen)
	rand.New(rand.NewSource(seed)).Read(buf)
	check := make([]byte, maxLen)

	fmt.Printf("profile %s speed, %d lengths\n", mode, maxLen)
	mismatched := 0
	for n := 1; n <= maxLen; n++ {
		// The erase is setup, not part of the timed write.
		first := uint32(addr) &^ (sectorSize - 1)
		last := (uint32(addr) + uint32(n) - 1) &^ (sectorSize - 1)
		for s := first; s <= last; s += sectorSize {
			if err := t.flash.Erase4KB(s); err != nil {
				fatalf("erase sector 0x%06x failed: %v", s, err)
			}
		}

		t.timer.Reset()
		t.timer.SetEnabled(true)
		err := t.flash.Write(uint32(addr), buf[:n])
		t.timer.SetEnabled(false)
		if err != nil {
			fatalf("write of %d bytes failed: %v", n, err)
		}
		wcycles := t.timer.Read()

		t.timer.Reset()
		t.timer.SetEnabled(true)
		if mode == "quad" {
			err = t.flash.ReadQuad(uint32(addr), check[:n])
		} else {
			err = t.flash.Read(uint32(addr), check[:n])
		}
		t.timer.SetEnabled(false)
		if err != nil {
			fatalf("read of %d bytes failed: %v", n, err)
		}
		rcycles := t.timer.Read()

		fmt.Printf("W%d, R%d, ", wcycles, rcycles)
		if !bytes.Equal(check[:n], buf[:n]) {
			fmt.Printf("\nlength %d: read-back mismatch\n", n)
			mismatched++
		}
	}
	fmt.Println()

	if mismatched > 0 {
		fatalf("failure, %d lengths mismatched!", mismatched)
	}
	fmt.Println("success!")
}
