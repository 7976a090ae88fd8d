package spisim

// FlashModel is a behavioral W25Q-family NOR flash chip. It consumes the
// byte stream the host controller shifts out while chip select is asserted
// and produces the bytes the chip would drive back.
//
// The model covers the command subset the w25q driver issues: power
// up/down, standard/dual/quad reads, write enable, page program, sector and
// chip erase, status registers 1 and 2, and the software reset pair. Dummy
// clocks are modeled as a required count between the quad address phase and
// the data phase; surplus clocks are ignored, missing ones make the data
// phase return 0xFF.
type FlashModel struct {
	mem map[uint32]byte // absent bytes read as erased (0xFF)

	powered    bool
	wel        bool
	sr2        byte
	resetArmed bool

	// busyPolls is how many status reads report BUSY after a program or
	// erase commits.
	busyPolls int
	busyDelay int

	requiredDummy int

	// transaction state, valid while the chip is selected
	selected  bool
	hasOp     bool
	op        byte
	addrN     int
	addr      uint32
	modeSeen  bool
	dummyLeft int
	progBuf   []byte
	sr2New    byte
	sr2Got    bool
}

const addrMask = 1<<24 - 1
const pageMask = 0xFF

func newFlashModel(requiredDummy, busyDelay int) *FlashModel {
	return &FlashModel{
		mem:           make(map[uint32]byte),
		powered:       true, // power-on default is standby, not power-down
		busyDelay:     busyDelay,
		requiredDummy: requiredDummy,
	}
}

// Load stores data at addr directly, bypassing program semantics. Test and
// simulation setup only.
func (m *FlashModel) Load(addr uint32, data []byte) {
	for i, b := range data {
		m.store(addr+uint32(i), b)
	}
}

// Peek returns n bytes at addr as the chip array holds them.
func (m *FlashModel) Peek(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.read(addr + uint32(i))
	}
	return out
}

// Corrupt flips the low bit of the byte at addr.
func (m *FlashModel) Corrupt(addr uint32) {
	m.store(addr, m.read(addr)^0x01)
}

// QuadEnabled reports the QE bit of status register 2.
func (m *FlashModel) QuadEnabled() bool { return m.sr2&(1<<1) != 0 }

func (m *FlashModel) read(addr uint32) byte {
	if b, ok := m.mem[addr&addrMask]; ok {
		return b
	}
	return 0xFF
}

func (m *FlashModel) store(addr uint32, b byte) {
	if b == 0xFF {
		delete(m.mem, addr&addrMask)
		return
	}
	m.mem[addr&addrMask] = b
}

// begin marks the start of a transaction (chip select asserted).
func (m *FlashModel) begin() {
	m.selected = true
	m.hasOp = false
	m.addrN = 0
	m.addr = 0
	m.modeSeen = false
	m.dummyLeft = 0
	m.progBuf = nil
	m.sr2Got = false
}

// feed consumes one byte shifted out by the host.
func (m *FlashModel) feed(b byte) {
	if !m.selected {
		m.begin()
	}
	if !m.hasOp {
		m.op = b
		m.hasOp = true
		return
	}
	if !m.powered {
		return // only the release-power-down opcode is honored
	}

	switch m.op {
	case 0x03, 0xBB, 0xEB, 0x02, 0x20, 0x52, 0xD8:
		if m.addrN < 3 {
			m.addr = m.addr<<8 | uint32(b)
			m.addrN++
			return
		}
		switch m.op {
		case 0xBB, 0xEB:
			if !m.modeSeen {
				m.modeSeen = true
				if m.op == 0xEB {
					m.dummyLeft = m.requiredDummy
				}
			}
		case 0x02:
			m.progBuf = append(m.progBuf, b)
		}
	case 0x31:
		if !m.sr2Got {
			m.sr2New = b
			m.sr2Got = true
		}
	}
}

// dummy consumes n dummy clock cycles.
func (m *FlashModel) dummy(n int) {
	if m.dummyLeft > 0 {
		m.dummyLeft -= n
		if m.dummyLeft < 0 {
			m.dummyLeft = 0
		}
	}
}

// out produces one byte driven back by the chip.
func (m *FlashModel) out() byte {
	if !m.selected || !m.hasOp || !m.powered {
		return 0xFF
	}
	switch m.op {
	case 0x05:
		var sr byte
		if m.busyPolls > 0 {
			m.busyPolls--
			sr |= 1 << 0
		}
		if m.wel {
			sr |= 1 << 1
		}
		return sr
	case 0x35:
		return m.sr2
	case 0x03:
		if m.addrN < 3 {
			return 0xFF
		}
		b := m.read(m.addr)
		m.addr++
		return b
	case 0xBB:
		if m.addrN < 3 || !m.modeSeen {
			return 0xFF
		}
		b := m.read(m.addr)
		m.addr++
		return b
	case 0xEB:
		// Quad I/O is dead silicon until the QE bit is set.
		if !m.QuadEnabled() || m.addrN < 3 || !m.modeSeen || m.dummyLeft > 0 {
			return 0xFF
		}
		b := m.read(m.addr)
		m.addr++
		return b
	}
	return 0xFF
}

// end marks the end of the transaction (chip select released) and commits
// any program, erase or register write. A select pulse that carried no
// opcode commits nothing, but still breaks a pending reset-enable pair.
func (m *FlashModel) end() {
	armed := false
	if m.hasOp {
		switch m.op {
		case 0xAB:
			m.powered = true
		case 0xB9:
			if m.powered {
				m.powered = false
			}
		case 0x06:
			if m.powered {
				m.wel = true
			}
		case 0x66:
			armed = m.powered
		case 0x99:
			if m.powered && m.resetArmed {
				m.wel = false
				m.busyPolls = 0
			}
		case 0x02:
			if m.powered && m.wel && m.addrN == 3 && len(m.progBuf) > 0 {
				// Programming only clears bits; the column wraps within
				// the 256-byte page.
				base := m.addr &^ pageMask
				col := m.addr & pageMask
				for _, b := range m.progBuf {
					a := base | col
					m.store(a, m.read(a)&b)
					col = (col + 1) & pageMask
				}
				m.wel = false
				m.busyPolls = m.busyDelay
			}
		case 0x20:
			m.eraseRegion(4 << 10)
		case 0x52:
			m.eraseRegion(32 << 10)
		case 0xD8:
			m.eraseRegion(64 << 10)
		case 0xC7:
			if m.powered && m.wel {
				m.mem = make(map[uint32]byte)
				m.wel = false
				m.busyPolls = m.busyDelay
			}
		case 0x31:
			if m.powered && m.wel && m.sr2Got {
				m.sr2 = m.sr2New
				m.wel = false
				m.busyPolls = m.busyDelay
			}
		}
	}
	m.resetArmed = armed
	m.selected = false
	m.hasOp = false
}

func (m *FlashModel) eraseRegion(size uint32) {
	if !m.powered || !m.wel || m.addrN != 3 {
		return
	}
	base := m.addr &^ (size - 1)
	for a := range m.mem {
		if a >= base && a < base+size {
			delete(m.mem, a)
		}
	}
	m.wel = false
	m.busyPolls = m.busyDelay
}
