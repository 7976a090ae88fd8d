package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
)

// quadreadCommand reads words back over Fast Read Quad I/O and verifies
// them against a reference buffer: the first word of the default reference
// is 1, the rest 0. In simulation the reference is preloaded into the chip
// model first, so a clean run exits 0; -corrupt flips a bit to demonstrate
// the failure path.
func quadreadCommand(args []string) {
	fs := flag.NewFlagSet("quadread", flag.ExitOnError)
	var (
		opts    targetOpts
		addr    uint64
		nwords  int
		refFile string
		corrupt bool
	)
	opts.register(fs)
	fs.Uint64Var(&addr, "addr", 0, "flash address to read")
	fs.IntVar(&nwords, "n", 8, "number of words to read")
	fs.StringVar(&refFile, "ref", "", "reference file (little-endian words; default built-in pattern)")
	fs.BoolVar(&corrupt, "corrupt", false, "corrupt one simulated byte before reading")
	fs.Parse(args)

	if nwords < 0 {
		fatalUsage("-n must be non-negative, got %d", nwords)
	}

	reference := make([]uint32, nwords)
	if refFile == "" {
		if nwords > 0 {
			reference[0] = 1
		}
	} else {
		buf, err := os.ReadFile(refFile)
		if err != nil {
			fatalf("read reference: %v", err)
		}
		if len(buf) < nwords*4 {
			fatalUsage("reference file holds %d bytes, need %d", len(buf), nwords*4)
		}
		for i := range reference {
			reference[i] = binary.LittleEndian.Uint32(buf[4*i:])
		}
	}

	t, err := openTarget(&opts)
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	if t.sim != nil {
		img := make([]byte, nwords*4)
		for i, w := range reference {
			binary.LittleEndian.PutUint32(img[4*i:], w)
		}
		t.sim.Flash().Load(uint32(addr), img)
		if corrupt {
			t.sim.Flash().Corrupt(uint32(addr))
		}
	}

	data := make([]uint32, nwords)
	if err := t.flash.ReadQuadWords(uint32(addr), data); err != nil {
		fatalf("quad read failed: %v", err)
	}

	if errs := t.flash.Verify(uint32(addr), data, reference); errs != 0 {
		fatalf("failure, %d errors!", errs)
	}
	fmt.Println("success!")
}
