package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/snksoft/crc"
)

func readCommand(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	var (
		opts       targetOpts
		addr       uint64
		nread      int
		mode       string
		outFile    string
		statusOnly bool
	)
	opts.register(fs)
	fs.Uint64Var(&addr, "addr", 0, "flash address to read")
	fs.IntVar(&nread, "n", 256, "number of bytes to read")
	fs.StringVar(&mode, "mode", "standard", "bus mode: standard, dual or quad")
	fs.StringVar(&outFile, "o", "", "output file (default: hexdump)")
	fs.BoolVar(&statusOnly, "s", false, "just print the flash status register")
	fs.Parse(args)

	if nread < 0 {
		fatalUsage("-n must be non-negative, got %d", nread)
	}

	t, err := openTarget(&opts)
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	if statusOnly {
		sr, err := t.flash.ReadStatus()
		if err != nil {
			fatalf("read flash status register failed: %v", err)
		}
		fmt.Println(sr)
		return
	}

	data := make([]byte, nread)
	switch mode {
	case "standard":
		err = t.flash.Read(uint32(addr), data)
	case "dual":
		err = t.flash.ReadDual(uint32(addr), data)
	case "quad":
		err = t.flash.ReadQuad(uint32(addr), data)
	default:
		fatalUsage("unknown mode %q", mode)
	}
	if err != nil {
		fatalf("read flash failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "crc32: %08x\n", crc.CalculateCRC(crc.CRC32, data))

	if outFile == "" {
		fmt.Println(hex.Dump(data))
		return
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		fatalf("write file failed: %v", err)
	}
}
