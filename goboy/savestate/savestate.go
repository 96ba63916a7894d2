// Package savestate implements the BESS-style save-state container: a
// concatenation of raw memory regions followed by a sequence of tagged
// TLV blocks, closed by a footer that points back at the first block.
// It serializes CPU registers and the full MMU state (every bank,
// regardless of which one is currently selected) plus MBC3's RTC.
package savestate

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/arnegreiner/goboy/goboy/cpu"
	"github.com/arnegreiner/goboy/goboy/memory"
)

// InvalidSaveStateError reports why a save-state blob was rejected: a
// short read, an unknown block tag, or a bad footer magic.
type InvalidSaveStateError struct {
	Reason string
}

func (e *InvalidSaveStateError) Error() string {
	return fmt.Sprintf("savestate: invalid save state: %s", e.Reason)
}

const (
	magic      = "BESS"
	emulatorID = "goboy\x00\x00\x00"

	tagNAME = "NAME"
	tagINFO = "INFO"
	tagCORE = "CORE"
	tagRTC  = "RTC "
	tagEND  = "END "

	coreVersionMajor = 1
	coreVersionMinor = 0

	ioRegionSize = 128 // 0xFF00-0xFF7F
	oamSize      = 0xA0
	hramSize     = 0x7F
	paletteSize  = 64
)

func modelTag(m memory.Model) string {
	switch m {
	case memory.ModelMGB:
		return "GM  "
	case memory.ModelCGB:
		return "CC  "
	default:
		return "GD  "
	}
}

func modelFromTag(tag string) (memory.Model, error) {
	switch tag {
	case "GD  ":
		return memory.ModelDMG, nil
	case "GM  ":
		return memory.ModelMGB, nil
	case "CC  ":
		return memory.ModelCGB, nil
	default:
		return 0, &InvalidSaveStateError{Reason: fmt.Sprintf("unknown model tag %q", tag)}
	}
}

// State is the outcome of decoding a save-state blob: everything needed
// to restore a CPU and MMU to the snapshotted point in execution.
type State struct {
	Model memory.Model
	Title string
	CPU   cpu.State
	MMU   memory.MMUSnapshot
}

// region describes one flat memory block written ahead of the TLV section;
// CORE's offset table points back into these by index.
type region struct {
	name string
	data []byte
}

// Write encodes cpuState and mmu's current snapshot into a BESS-shaped
// save state. title is the cartridge's header title, stored in the INFO
// block for display purposes only.
func Write(cpuState cpu.State, mmu *memory.MMU, title string) ([]byte, error) {
	snap := mmu.Snapshot()

	wram := make([]byte, 0)
	for _, bank := range snap.WRAMBanks {
		wram = append(wram, bank[:]...)
	}
	vram := make([]byte, 0)
	for _, bank := range snap.VRAMBanks {
		vram = append(vram, bank[:]...)
	}
	oam := snap.Memory[0xFE00 : 0xFE00+oamSize]
	hram := snap.Memory[0xFF80 : 0xFF80+hramSize]

	// VBK/SVBK/BCPS/OCPS/OPRI/KEY1 live in dedicated MMU fields rather than
	// the flat memory array (see MMU.writeIO), so the raw I/O window has to
	// be patched with their current values before it's serialized.
	ioRegs := append([]byte(nil), snap.Memory[0xFF00:0xFF00+ioRegionSize]...)
	ioRegs[0xFF4D-0xFF00] = snap.Key1
	if snap.DoubleSpeed {
		ioRegs[0xFF4D-0xFF00] |= 0x80
	}
	ioRegs[0xFF4F-0xFF00] = snap.VBK
	ioRegs[0xFF68-0xFF00] = snap.BCPS
	ioRegs[0xFF6A-0xFF00] = snap.OCPS
	ioRegs[0xFF6C-0xFF00] = snap.OPRI
	ioRegs[0xFF70-0xFF00] = snap.SVBK

	regions := []region{
		{"RAM", wram},
		{"VRAM", vram},
		{"MBC RAM", snap.CartRAM},
		{"OAM", oam},
		{"HRAM", hram},
		{"BGP", snap.BGPalette[:]},
		{"OBP", snap.OBJPalette[:]},
	}

	var buf []byte
	offsets := make([]uint32, len(regions))
	sizes := make([]uint32, len(regions))
	for i, r := range regions {
		offsets[i] = uint32(len(buf))
		sizes[i] = uint32(len(r.data))
		buf = append(buf, r.data...)
	}

	firstBlockOffset := uint32(len(buf))

	buf = appendBlock(buf, tagNAME, []byte(emulatorID))
	buf = appendBlock(buf, tagINFO, infoBlock(title))

	core := coreBlock(cpuState, ioRegs, offsets, sizes, mmu.Model())
	buf = appendBlock(buf, tagCORE, core)

	if snap.HasRTC {
		buf = appendBlock(buf, tagRTC, rtcBlock(snap))
	}

	buf = appendBlock(buf, tagEND, nil)

	footer := make([]byte, 8)
	binary.LittleEndian.PutUint32(footer, firstBlockOffset)
	copy(footer[4:], magic)
	buf = append(buf, footer...)

	return buf, nil
}

func appendBlock(buf []byte, tag string, payload []byte) []byte {
	buf = append(buf, []byte(tag)...)
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, uint32(len(payload)))
	buf = append(buf, lenBytes...)
	return append(buf, payload...)
}

func infoBlock(title string) []byte {
	b := make([]byte, 16)
	copy(b, title)
	return b
}

func coreBlock(c cpu.State, ioRegs []byte, offsets, sizes []uint32, model memory.Model) []byte {
	b := make([]byte, 0, 4+4+16+13+len(ioRegs)+8*len(offsets))

	b = append(b, le16(coreVersionMajor)...)
	b = append(b, le16(coreVersionMinor)...)
	b = append(b, []byte(modelTag(model))...)

	b = append(b, le16(c.PC)...)
	af := uint16(c.A)<<8 | uint16(c.F)
	bc := uint16(c.B)<<8 | uint16(c.C)
	de := uint16(c.D)<<8 | uint16(c.E)
	hl := uint16(c.H)<<8 | uint16(c.L)
	b = append(b, le16(af)...)
	b = append(b, le16(bc)...)
	b = append(b, le16(de)...)
	b = append(b, le16(hl)...)
	b = append(b, le16(c.SP)...)

	b = append(b, boolByte(c.IME))
	b = append(b, boolByte(c.Halted))
	b = append(b, 0) // reserved

	b = append(b, ioRegs...)

	for i := range offsets {
		b = append(b, le32(sizes[i])...)
		b = append(b, le32(offsets[i])...)
	}

	return b
}

func rtcBlock(snap memory.MMUSnapshot) []byte {
	b := make([]byte, 0, 5+5+8)
	b = append(b, snap.RTCLive[:]...)
	b = append(b, snap.RTCLatched[:]...)
	b = append(b, le64(uint64(time.Now().Unix()))...)
	return b
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Load decodes a save-state blob produced by Write. It locates the footer
// magic, walks the TLV blocks from the recorded first-block offset, and
// reassembles CPU and MMU state. Unknown block tags fail the load, as do
// any reads past the end of data.
func Load(data []byte) (*State, error) {
	if len(data) < 8 {
		return nil, &InvalidSaveStateError{Reason: "blob shorter than footer"}
	}

	footer := data[len(data)-8:]
	if string(footer[4:8]) != magic {
		return nil, &InvalidSaveStateError{Reason: "bad footer magic"}
	}
	firstBlockOffset := binary.LittleEndian.Uint32(footer[:4])
	body := data[:len(data)-8]

	if uint32(len(body)) < firstBlockOffset {
		return nil, &InvalidSaveStateError{Reason: "first-block offset past end of data"}
	}

	result := &State{}
	var core []byte
	var sawCore bool
	var rtc []byte

	pos := int(firstBlockOffset)
	for {
		if pos+8 > len(body) {
			return nil, &InvalidSaveStateError{Reason: "truncated block header"}
		}
		tag := string(body[pos : pos+4])
		length := binary.LittleEndian.Uint32(body[pos+4 : pos+8])
		pos += 8
		if pos+int(length) > len(body) {
			return nil, &InvalidSaveStateError{Reason: fmt.Sprintf("block %q truncated payload", tag)}
		}
		payload := body[pos : pos+int(length)]
		pos += int(length)

		switch tag {
		case tagNAME:
		case tagINFO:
			result.Title = stringFromNullPadded(payload)
		case tagCORE:
			core = payload
			sawCore = true
		case tagRTC:
			rtc = payload
		case tagEND:
			goto doneBlocks
		default:
			return nil, &InvalidSaveStateError{Reason: fmt.Sprintf("unknown block tag %q", tag)}
		}
	}

doneBlocks:
	if !sawCore {
		return nil, &InvalidSaveStateError{Reason: "missing CORE block"}
	}

	if err := decodeCore(core, body, result); err != nil {
		return nil, err
	}
	if rtc != nil {
		if err := decodeRTC(rtc, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func stringFromNullPadded(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func decodeCore(core, body []byte, result *State) error {
	const headerLen = 4 + 4 + 2 + 2 + 2 + 2 + 2 + 2 + 1 + 1 + 1 + ioRegionSize
	if len(core) < headerLen {
		return &InvalidSaveStateError{Reason: "CORE block too short"}
	}

	off := 0
	off += 2 // version major
	off += 2 // version minor
	model, err := modelFromTag(string(core[off : off+4]))
	if err != nil {
		return err
	}
	off += 4

	pc := binary.LittleEndian.Uint16(core[off:])
	off += 2
	af := binary.LittleEndian.Uint16(core[off:])
	off += 2
	bc := binary.LittleEndian.Uint16(core[off:])
	off += 2
	de := binary.LittleEndian.Uint16(core[off:])
	off += 2
	hl := binary.LittleEndian.Uint16(core[off:])
	off += 2
	sp := binary.LittleEndian.Uint16(core[off:])
	off += 2

	ime := core[off] != 0
	off++
	halted := core[off] != 0
	off++
	off++ // reserved

	ioRegs := core[off : off+ioRegionSize]
	off += ioRegionSize

	result.Model = model
	result.CPU = cpu.State{
		PC: pc, SP: sp,
		A: byte(af >> 8), F: byte(af) & 0xF0,
		B: byte(bc >> 8), C: byte(bc),
		D: byte(de >> 8), E: byte(de),
		H: byte(hl >> 8), L: byte(hl),
		IME:    ime,
		Halted: halted,
	}

	regionNames := []string{"RAM", "VRAM", "MBC RAM", "OAM", "HRAM", "BGP", "OBP"}
	regionData := make(map[string][]byte, len(regionNames))
	for _, name := range regionNames {
		if off+8 > len(core) {
			return &InvalidSaveStateError{Reason: "CORE offset table truncated"}
		}
		size := binary.LittleEndian.Uint32(core[off:])
		off += 4
		regionOffset := binary.LittleEndian.Uint32(core[off:])
		off += 4

		if uint64(regionOffset)+uint64(size) > uint64(len(body)) {
			return &InvalidSaveStateError{Reason: fmt.Sprintf("region %q extends past data", name)}
		}
		regionData[name] = body[regionOffset : regionOffset+size]
	}

	var snap memory.MMUSnapshot
	copy(snap.Memory[0xFF00:0xFF00+ioRegionSize], ioRegs)
	if oam := regionData["OAM"]; len(oam) == oamSize {
		copy(snap.Memory[0xFE00:0xFE00+oamSize], oam)
	}
	if hram := regionData["HRAM"]; len(hram) == hramSize {
		copy(snap.Memory[0xFF80:0xFF80+hramSize], hram)
	}
	if bgp := regionData["BGP"]; len(bgp) == paletteSize {
		copy(snap.BGPalette[:], bgp)
	}
	if obp := regionData["OBP"]; len(obp) == paletteSize {
		copy(snap.OBJPalette[:], obp)
	}
	if wram := regionData["RAM"]; len(wram) == 8*0x1000 {
		for i := range snap.WRAMBanks {
			copy(snap.WRAMBanks[i][:], wram[i*0x1000:(i+1)*0x1000])
		}
	}
	if vram := regionData["VRAM"]; len(vram) == 2*0x2000 {
		for i := range snap.VRAMBanks {
			copy(snap.VRAMBanks[i][:], vram[i*0x2000:(i+1)*0x2000])
		}
	}
	snap.CartRAM = append([]byte(nil), regionData["MBC RAM"]...)
	snap.VBK = ioRegs[0xFF4F-0xFF00] & 0x01
	snap.SVBK = ioRegs[0xFF70-0xFF00] & 0x07
	snap.BCPS = ioRegs[0xFF68-0xFF00]
	snap.OCPS = ioRegs[0xFF6A-0xFF00]
	snap.OPRI = ioRegs[0xFF6C-0xFF00]
	snap.Key1 = ioRegs[0xFF4D-0xFF00]
	snap.DoubleSpeed = snap.Key1&0x80 != 0
	snap.JoypadButtons = 0x0F
	snap.JoypadDpad = 0x0F

	result.MMU = snap
	return nil
}

func decodeRTC(rtc []byte, result *State) error {
	if len(rtc) < 5+5+8 {
		return &InvalidSaveStateError{Reason: "RTC block too short"}
	}
	copy(result.MMU.RTCLive[:], rtc[0:5])
	copy(result.MMU.RTCLatched[:], rtc[5:10])
	result.MMU.HasRTC = true

	saved := binary.LittleEndian.Uint64(rtc[10:18])
	now := uint64(time.Now().Unix())
	if now > saved && result.MMU.RTCLive[4]&0x40 == 0 { // halt bit clear
		addRTCSeconds(&result.MMU.RTCLive, now-saved)
	}
	return nil
}

// addRTCSeconds advances the live MBC3 RTC registers by elapsed seconds of
// real time, the same catch-up a save state applies on load to cover time
// the machine spent powered off. Carries ripple seconds into minutes, hours
// and the 9 bit day counter, setting the day-carry flag once the counter
// wraps past 511, matching the register layout decodeRTC/rtcBlock use:
// [seconds, minutes, hours, days-low, days-high].
func addRTCSeconds(regs *[5]uint8, elapsed uint64) {
	secs := uint64(regs[0]) + elapsed
	regs[0] = uint8(secs % 60)

	mins := uint64(regs[1]) + secs/60
	regs[1] = uint8(mins % 60)

	hours := uint64(regs[2]) + mins/60
	regs[2] = uint8(hours % 24)

	days := uint64(regs[3]) + uint64(regs[4]&0x01)<<8 + hours/24
	regs[3] = uint8(days & 0xFF)
	regs[4] = (regs[4] &^ 0x01) | uint8((days>>8)&0x01)
	if days >= 512 {
		regs[4] |= 0x80
	}
}
