package memory

import (
	"fmt"
	"log/slog"

	"github.com/arnegreiner/goboy/goboy/addr"
	"github.com/arnegreiner/goboy/goboy/audio"
	"github.com/arnegreiner/goboy/goboy/bit"
	"github.com/arnegreiner/goboy/goboy/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// Model selects which hardware revision the bus behaves as. PPU/APU
// register availability and a handful of MMU behaviors (WRAM/VRAM banking,
// double speed, palette RAM) depend on it.
type Model uint8

const (
	ModelDMG Model = iota
	ModelMGB
	ModelCGB
)

// MMU owns every addressable byte on the bus: cartridge ROM/RAM via the MBC,
// the flat memory regions, and the register-backed peripherals (joypad,
// serial, timer, APU, DMA, HDMA). It is the single point every CPU memory
// access passes through.
type MMU struct {
	model Model

	cart      *Cartridge
	mbc       MBC
	memory    []byte // OAM, HRAM, IO registers, and DMG's single WRAM/VRAM bank
	regionMap [256]memRegion

	vramBanks [2][0x2000]byte
	vbk       uint8

	wramBanks [8][0x1000]byte
	svbk      uint8

	bgPalette, objPalette cgbPaletteRAM
	bcps, ocps            uint8
	opri                  uint8

	bootROM    []byte
	bootMapped bool

	key1 uint8 // speed-switch register; bit0 armed, bit7 current speed
	doubleSpeed bool

	joypadButtons uint8
	joypadDpad    uint8

	serial SerialPort
	timer  Timer
	dma    dmaController
	hdma   hdmaController

	APU *audio.APU
}

// cgbPaletteRAM is the 8 palettes x 4 colors x 2 bytes (5-5-5 RGB) CGB BG/OBJ
// palette memory addressed indirectly through BCPS/BCPD (or OCPS/OCPD).
type cgbPaletteRAM [64]byte

// New creates a new memory unit with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	return NewWithModel(ModelDMG)
}

// NewWithModel creates an empty MMU configured for the given hardware model.
func NewWithModel(model Model) *MMU {
	mmu := &MMU{
		model:         model,
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		mbc:           NewNoMBC(NewCartridge().Data()),
		APU:           audio.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
	}
	mmu.serial = serial.NewLogSink(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	mmu.dma.mmu = mmu
	mmu.hdma.mmu = mmu
	initRegionMap(mmu)
	return mmu
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	model := ModelDMG
	if cart.CGBSupport != CGBUnsupported {
		model = ModelCGB
	}
	mmu := NewWithModel(model)
	mmu.cart = cart
	mmu.mbc = NewMBC(cart)
	return mmu
}

// SetBootROM installs a boot ROM image (256 bytes DMG/MGB, 2304 bytes CGB
// with the 0x100-0x1FF gap reserved for the cartridge header) and maps it
// over the low ROM region until FF50 is written.
func (m *MMU) SetBootROM(data []byte) {
	m.bootROM = data
	m.bootMapped = len(data) > 0
}

// Model reports the hardware model this bus is emulating.
func (m *MMU) Model() Model { return m.model }

// Cartridge returns the currently loaded cartridge header/metadata.
func (m *MMU) Cartridge() *Cartridge { return m.cart }

// DoubleSpeed reports whether KEY1 double speed is currently engaged (CGB only).
func (m *MMU) DoubleSpeed() bool { return m.doubleSpeed }

// Tick advances every bus-owned peripheral by the given number of base
// clocks (4 per M-cycle, 8 in CGB double speed), in hardware order: OAM
// DMA, HDMA, timer/serial, then the APU. The PPU is ticked by its owner
// (the caller), not the MMU, since it is constructed independently of it.
func (m *MMU) Tick(cycles int) {
	m.dma.Tick(cycles)
	m.hdma.Tick(cycles)
	m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
	m.mbc.Tick(cycles)
	m.APU.Tick(cycles)
}

func initRegionMap(m *MMU) {
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	m.regionMap[0xFE] = regionOAM
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		slog.Warn("unknown interrupt requested", "bits", uint8(interrupt))
		return
	}

	m.Write(addr.IF, bit.Set(bitPos, interruptFlags))
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

func (m *MMU) wramBankIndex() uint8 {
	bank := m.svbk & 0x07
	if bank == 0 {
		bank = 1
	}
	return bank
}

// ReadVRAMBank reads from a specific VRAM bank regardless of the current
// VBK selection, for the PPU's CGB tile-attribute and tile-data fetches
// (bank 1 carries attributes and, optionally, alternate tile data).
func (m *MMU) ReadVRAMBank(bank uint8, address uint16) byte {
	return m.vramBanks[bank&0x01][address-0x8000]
}

func (m *MMU) Read(address uint16) byte {
	if m.bootMapped && address < uint16(len(m.bootROM)) && !(m.model == ModelCGB && address >= 0x100 && address < 0x200) {
		return m.bootROM[address]
	}

	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		return m.mbc.Read(address)
	case regionVRAM:
		if m.dma.blocksVRAM() {
			return 0xFF
		}
		return m.vramBanks[m.vbk&0x01][address-0x8000]
	case regionWRAM:
		if address <= 0xCFFF {
			return m.wramBanks[0][address-0xC000]
		}
		return m.wramBanks[m.wramBankIndex()][address-0xD000]
	case regionEcho:
		return m.Read(address - 0x2000)
	case regionOAM:
		if address > addr.OAMEnd {
			return 0xFF // unusable region, writes are dropped and reads float high
		}
		if m.dma.active {
			return 0xFF
		}
		return m.memory[address]
	case regionIO:
		return m.readIO(address)
	default:
		slog.Warn("read at unmapped address", "addr", fmt.Sprintf("0x%04X", address))
		return 0xFF
	}
}

func (m *MMU) readIO(address uint16) byte {
	switch address {
	case addr.P1:
		return m.memory[address]
	case addr.SB, addr.SC:
		return m.serial.Read(address)
	case addr.DIV, addr.TIMA, addr.TMA, addr.TAC:
		return m.timer.Read(address)
	case addr.IF:
		return m.memory[address] | 0xE0
	case addr.DMA:
		return m.memory[address]
	case addr.KEY1:
		if m.model != ModelCGB {
			return 0xFF
		}
		v := m.key1 & 0x01
		if m.doubleSpeed {
			v |= 0x80
		}
		return v | 0x7E
	case addr.VBK:
		if m.model != ModelCGB {
			return 0xFF
		}
		return m.vbk | 0xFE
	case addr.SVBK:
		if m.model != ModelCGB {
			return 0xFF
		}
		return m.svbk | 0xF8
	case addr.HDMA5:
		if m.model != ModelCGB {
			return 0xFF
		}
		return m.hdma.status()
	case addr.BCPS:
		return m.bcps | 0x40
	case addr.BCPD:
		return m.bgPalette[m.bcps&0x3F]
	case addr.OCPS:
		return m.ocps | 0x40
	case addr.OCPD:
		return m.objPalette[m.ocps&0x3F]
	case addr.OPRI:
		return m.opri | 0xFE
	default:
		if address >= addr.AudioStart && address <= addr.AudioEnd {
			return m.APU.ReadRegister(address)
		}
		if address >= 0xFF80 {
			return m.memory[address]
		}
		return m.memory[address]
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		m.mbc.Write(address, value)
	case regionVRAM:
		if m.dma.blocksVRAM() {
			return
		}
		m.vramBanks[m.vbk&0x01][address-0x8000] = value
	case regionWRAM:
		if address <= 0xCFFF {
			m.wramBanks[0][address-0xC000] = value
		} else {
			m.wramBanks[m.wramBankIndex()][address-0xD000] = value
		}
	case regionEcho:
		m.Write(address-0x2000, value)
	case regionOAM:
		if address > addr.OAMEnd {
			return // unusable region: writes silently dropped
		}
		if m.dma.active {
			return
		}
		m.memory[address] = value
	case regionIO:
		m.writeIO(address, value)
	default:
		slog.Warn("write at unmapped address", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch address {
	case addr.P1:
		m.writeJoypad(value)
	case addr.SB, addr.SC:
		m.serial.Write(address, value)
	case addr.DIV, addr.TIMA, addr.TMA, addr.TAC:
		m.timer.Write(address, value)
	case addr.IF:
		m.memory[address] = value | 0xE0
	case addr.DMA:
		m.memory[address] = value
		m.dma.start(value)
	case addr.KEY1:
		if m.model == ModelCGB {
			m.key1 = value & 0x01
		}
	case addr.VBK:
		if m.model == ModelCGB {
			m.vbk = value & 0x01
		}
	case addr.SVBK:
		if m.model == ModelCGB {
			m.svbk = value & 0x07
		}
	case addr.BOOT:
		if value&0x01 != 0 {
			m.bootMapped = false
		}
	case addr.HDMA1:
		m.hdma.srcHi = value
	case addr.HDMA2:
		m.hdma.srcLo = value & 0xF0
	case addr.HDMA3:
		m.hdma.dstHi = value & 0x1F
	case addr.HDMA4:
		m.hdma.dstLo = value & 0xF0
	case addr.HDMA5:
		if m.model == ModelCGB {
			m.hdma.start(value)
		}
	case addr.BCPS:
		m.bcps = value & 0xBF
	case addr.BCPD:
		m.bgPalette[m.bcps&0x3F] = value
		if m.bcps&0x80 != 0 {
			m.bcps = (m.bcps & 0x80) | ((m.bcps + 1) & 0x3F)
		}
	case addr.OCPS:
		m.ocps = value & 0xBF
	case addr.OCPD:
		m.objPalette[m.ocps&0x3F] = value
		if m.ocps&0x80 != 0 {
			m.ocps = (m.ocps & 0x80) | ((m.ocps + 1) & 0x3F)
		}
	case addr.OPRI:
		m.opri = value & 0x01
	default:
		if address >= addr.AudioStart && address <= addr.AudioEnd {
			m.APU.WriteRegister(address, value)
			return
		}
		m.memory[address] = value
	}
}

// TrySwitchSpeed performs a KEY1-armed speed switch (invoked by the CPU when
// executing STOP with bit0 of KEY1 set) and resets DIV. Returns whether the
// speed changed.
func (m *MMU) TrySwitchSpeed() bool {
	if m.model != ModelCGB || m.key1&0x01 == 0 {
		return false
	}
	m.doubleSpeed = !m.doubleSpeed
	m.key1 &^= 0x01
	m.timer.Write(addr.DIV, 0)
	return true
}

// BGPaletteColor returns the raw 15-bit color (little-endian packed) for a
// CGB background palette/color index pair.
func (m *MMU) BGPaletteColor(palette, color uint8) uint16 {
	base := (palette&0x07)*8 + (color&0x03)*2
	return uint16(m.bgPalette[base]) | uint16(m.bgPalette[base+1])<<8
}

// OBJPaletteColor mirrors BGPaletteColor for the sprite palette RAM.
func (m *MMU) OBJPaletteColor(palette, color uint8) uint16 {
	base := (palette&0x07)*8 + (color&0x03)*2
	return uint16(m.objPalette[base]) | uint16(m.objPalette[base+1])<<8
}

// MMUSnapshot captures every piece of mutable MMU state a save-state codec
// needs to restore bit-for-bit, including banks not currently selected
// (CGB VRAM bank 1, the seven extra WRAM banks, palette RAM). Cartridge RAM
// is captured separately since its size depends on the loaded cartridge.
type MMUSnapshot struct {
	Memory     [0x10000]byte
	VRAMBanks  [2][0x2000]byte
	WRAMBanks  [8][0x1000]byte
	BGPalette  [64]byte
	OBJPalette [64]byte

	VBK, SVBK             uint8
	BCPS, OCPS, OPRI      uint8
	Key1                  uint8
	DoubleSpeed           bool
	JoypadButtons         uint8
	JoypadDpad            uint8

	CartRAM []byte

	RTCLive, RTCLatched [5]uint8
	HasRTC              bool
}

// Snapshot captures the current MMU state for serialization.
func (m *MMU) Snapshot() MMUSnapshot {
	s := MMUSnapshot{
		VBK:           m.vbk,
		SVBK:          m.svbk,
		BCPS:          m.bcps,
		OCPS:          m.ocps,
		OPRI:          m.opri,
		Key1:          m.key1,
		DoubleSpeed:   m.doubleSpeed,
		JoypadButtons: m.joypadButtons,
		JoypadDpad:    m.joypadDpad,
	}
	copy(s.Memory[:], m.memory)
	s.VRAMBanks = m.vramBanks
	s.WRAMBanks = m.wramBanks
	s.BGPalette = m.bgPalette
	s.OBJPalette = m.objPalette

	if ram := m.mbc.RAM(); ram != nil {
		s.CartRAM = append([]byte(nil), ram...)
	}

	if rtc, ok := m.mbc.(interface {
		RTC() (live, latched [5]uint8)
	}); ok {
		s.HasRTC = true
		s.RTCLive, s.RTCLatched = rtc.RTC()
	}

	return s
}

// Restore applies a previously captured snapshot, restoring every bank
// regardless of which one is currently selected.
func (m *MMU) Restore(s MMUSnapshot) {
	copy(m.memory, s.Memory[:])
	m.vramBanks = s.VRAMBanks
	m.wramBanks = s.WRAMBanks
	m.bgPalette = cgbPaletteRAM(s.BGPalette)
	m.objPalette = cgbPaletteRAM(s.OBJPalette)

	m.vbk = s.VBK
	m.svbk = s.SVBK
	m.bcps = s.BCPS
	m.ocps = s.OCPS
	m.opri = s.OPRI
	m.key1 = s.Key1
	m.doubleSpeed = s.DoubleSpeed
	m.joypadButtons = s.JoypadButtons
	m.joypadDpad = s.JoypadDpad

	if s.CartRAM != nil {
		if ram := m.mbc.RAM(); ram != nil {
			copy(ram, s.CartRAM)
		}
	}

	if s.HasRTC {
		if rtc, ok := m.mbc.(interface {
			SetRTC(live, latched [5]uint8)
		}); ok {
			rtc.SetRTC(s.RTCLive, s.RTCLatched)
		}
	}
}

// NotifyHBlank lets the PPU tell the bus it has entered HBlank, pacing any
// HBlank-mode HDMA transfer in progress.
func (m *MMU) NotifyHBlank() {
	m.hdma.NotifyHBlank()
}

// OAMPriorityMode reports OPRI: false selects CGB priority (OAM index order),
// true selects DMG-compatible priority (X coordinate order).
func (m *MMU) OAMPriorityMode() bool {
	return m.opri&0x01 != 0
}

// updateJoypadRegister sets the joypad register (P1) according to selection bits
// and hardware (buttons) status.
//
// In real hw, this register is actually just a selector (bits 4-5) that control
// to which set of buttons the low bits (0-3) are mapped to. Selection is
// active low.
//
// The mapping:
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Start, Select
//   - if both are clear, hw does an AND of both button sets
//   - if both are set, return 0x0F (high impedence state)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	result := uint8(0b11000000) // Bits 6-7 are always read as 1
	result |= p1 & 0b00110000   // Keep selection bits 4-5

	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		result |= 0x0F
	}

	m.memory[addr.P1] = result
}

func (m *MMU) writeJoypad(value uint8) {
	m.memory[addr.P1] = value & 0b00110000
	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	oldButtons := m.joypadButtons
	oldDpad := m.joypadDpad

	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	buttonTransitions := oldButtons & ^m.joypadButtons
	dpadTransitions := oldDpad & ^m.joypadDpad
	if buttonTransitions|dpadTransitions != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}
