package memory

// dmaController implements the OAM DMA transfer triggered by writing FF46.
// The real transfer takes 160 M-cycles (640 clocks) to copy 160 bytes into
// OAM, one byte every 4 clocks; writing FF46 again mid-transfer restarts it
// from the new source rather than queuing a second copy.
type dmaController struct {
	mmu *MMU

	active    bool
	sourceHi  uint8
	progress  int // bytes copied so far, 0-159
	cycleAcc  int // clocks accumulated towards the next byte
}

func (d *dmaController) start(sourceHi uint8) {
	d.active = true
	d.sourceHi = sourceHi
	d.progress = 0
	d.cycleAcc = 0
}

// blocksVRAM reports whether a read/write should be masked off because an
// active transfer denies the CPU the bus. OAM DMA only steals the bus for
// OAM itself on real hardware; VRAM stays CPU-accessible throughout.
func (d *dmaController) blocksVRAM() bool { return false }

func (d *dmaController) Tick(cycles int) {
	if !d.active {
		return
	}
	d.cycleAcc += cycles
	for d.cycleAcc >= 4 && d.active {
		d.cycleAcc -= 4
		source := uint16(d.sourceHi)<<8 + uint16(d.progress)
		d.mmu.memory[0xFE00+uint16(d.progress)] = d.mmu.readForDMA(source)
		d.progress++
		if d.progress >= 160 {
			d.active = false
		}
	}
}

// readForDMA reads the DMA source byte directly, bypassing the OAM-active
// read mask that would otherwise make every read during a transfer return
// 0xFF (the mask only applies to CPU-issued reads).
func (m *MMU) readForDMA(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		return m.mbc.Read(address)
	case regionVRAM:
		return m.vramBanks[m.vbk&0x01][address-0x8000]
	case regionWRAM:
		if address <= 0xCFFF {
			return m.wramBanks[0][address-0xC000]
		}
		return m.wramBanks[m.wramBankIndex()][address-0xD000]
	case regionEcho:
		return m.readForDMA(address - 0x2000)
	default:
		return 0xFF
	}
}
