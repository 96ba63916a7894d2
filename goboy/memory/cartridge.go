package memory

import (
	"fmt"
	"strings"
	"unicode"
)

const titleLength = 15

// byte offsets within the cartridge header, per the hardware layout at 0x100-0x14F.
const (
	entryPointAddress      = 0x100
	titleAddress           = 0x134
	cgbFlagAddress         = 0x143
	newLicenseeAddress     = 0x144
	oldLicenseeAddress     = 0x14B
	sgbFlagAddress         = 0x146
	cartridgeTypeAddress   = 0x147
	romSizeAddress         = 0x148
	ramSizeAddress         = 0x149
	destinationCodeAddress = 0x14A
	versionNumberAddress   = 0x14C
	headerChecksumAddress  = 0x14D
	globalChecksumAddress  = 0x14E
)

// CGBSupport describes the value of the CGB-flag header byte.
type CGBSupport uint8

const (
	CGBUnsupported CGBSupport = iota
	CGBCompatible
	CGBOnly
)

// MBCKind identifies the family of memory bank controller a cartridge uses.
type MBCKind uint8

const (
	MBCNone MBCKind = iota
	MBCType1
	MBCType2
	MBCType3
	MBCType5
	MBCUnknown
)

func (k MBCKind) String() string {
	switch k {
	case MBCNone:
		return "none"
	case MBCType1:
		return "MBC1"
	case MBCType2:
		return "MBC2"
	case MBCType3:
		return "MBC3"
	case MBCType5:
		return "MBC5"
	default:
		return "unknown"
	}
}

// InvalidCartridgeError reports why a ROM image was rejected at load time.
type InvalidCartridgeError struct {
	Reason string
}

func (e *InvalidCartridgeError) Error() string {
	return fmt.Sprintf("invalid cartridge: %s", e.Reason)
}

// Cartridge is the immutable ROM image plus the metadata decoded from its
// header. RAM, if any, is owned by the MBC built from it, not here.
type Cartridge struct {
	data []byte

	Title          string
	CGBSupport     CGBSupport
	MBC            MBCKind
	HasBattery     bool
	HasRTC         bool
	HasRumble      bool
	ROMBankCount   int
	RAMBankCount   uint8
	HeaderChecksum uint8
}

// NewCartridge creates an empty cartridge, useful only for booting the core
// with no game inserted (e.g. to inspect the boot ROM logo).
func NewCartridge() *Cartridge {
	return &Cartridge{data: make([]byte, 0x8000), MBC: MBCNone, ROMBankCount: 2}
}

// NewCartridgeWithData parses a ROM image and validates its header.
// Returns an *InvalidCartridgeError if the image fails the declared-size or
// checksum invariants.
func NewCartridgeWithData(data []byte) (*Cartridge, error) {
	if len(data) < 0x150 {
		return nil, &InvalidCartridgeError{Reason: "image shorter than header"}
	}

	romSizeByte := data[romSizeAddress]
	if romSizeByte > 8 {
		return nil, &InvalidCartridgeError{Reason: fmt.Sprintf("unsupported rom size byte 0x%02X", romSizeByte)}
	}
	declaredLen := 0x8000 << romSizeByte
	if len(data) != declaredLen {
		return nil, &InvalidCartridgeError{Reason: fmt.Sprintf("rom length %d does not match declared size %d", len(data), declaredLen)}
	}

	if err := verifyHeaderChecksum(data); err != nil {
		return nil, err
	}

	cartType := data[cartridgeTypeAddress]
	mbcKind, hasBattery, hasRTC, hasRumble := decodeCartridgeType(cartType)
	if mbcKind == MBCUnknown {
		return nil, &InvalidCartridgeError{Reason: fmt.Sprintf("unknown cartridge type byte 0x%02X", cartType)}
	}

	ramBankCount, err := ramBanksFor(data[ramSizeAddress], mbcKind)
	if err != nil {
		return nil, err
	}

	c := &Cartridge{
		data:           make([]byte, len(data)),
		Title:          cleanGameboyTitle(data[titleAddress : titleAddress+titleLength]),
		CGBSupport:     decodeCGBFlag(data[cgbFlagAddress]),
		MBC:            mbcKind,
		HasBattery:     hasBattery,
		HasRTC:         hasRTC,
		HasRumble:      hasRumble,
		ROMBankCount:   declaredLen / 0x4000,
		RAMBankCount:   ramBankCount,
		HeaderChecksum: data[headerChecksumAddress],
	}
	copy(c.data, data)

	return c, nil
}

// Data returns the raw ROM image, for the MBC to bank-index into.
func (c *Cartridge) Data() []byte {
	return c.data
}

func verifyHeaderChecksum(data []byte) error {
	var sum uint8
	for i := 0x134; i <= 0x14C; i++ {
		sum = sum - data[i] - 1
	}
	if sum != data[headerChecksumAddress] {
		return &InvalidCartridgeError{Reason: fmt.Sprintf("header checksum mismatch: computed 0x%02X, expected 0x%02X", sum, data[headerChecksumAddress])}
	}
	return nil
}

func decodeCGBFlag(b byte) CGBSupport {
	switch b {
	case 0xC0:
		return CGBOnly
	case 0x80:
		return CGBCompatible
	default:
		return CGBUnsupported
	}
}

// decodeCartridgeType maps header byte 0x147 to an MBC family plus feature flags.
func decodeCartridgeType(b byte) (kind MBCKind, battery, rtc, rumble bool) {
	switch b {
	case 0x00:
		return MBCNone, false, false, false
	case 0x01, 0x02:
		return MBCType1, false, false, false
	case 0x03:
		return MBCType1, true, false, false
	case 0x05:
		return MBCType2, false, false, false
	case 0x06:
		return MBCType2, true, false, false
	case 0x0F, 0x10:
		return MBCType3, true, true, false
	case 0x11, 0x12:
		return MBCType3, false, false, false
	case 0x13:
		return MBCType3, true, false, false
	case 0x19, 0x1A:
		return MBCType5, false, false, false
	case 0x1B:
		return MBCType5, true, false, false
	case 0x1C, 0x1D:
		return MBCType5, false, false, true
	case 0x1E:
		return MBCType5, true, false, true
	default:
		return MBCUnknown, false, false, false
	}
}

func ramBanksFor(b byte, kind MBCKind) (uint8, error) {
	if kind == MBCType2 {
		// MBC2 carries its own 512x4-bit RAM, not declared by this byte.
		return 0, nil
	}
	switch b {
	case 0x00:
		return 0, nil
	case 0x01:
		return 1, nil // unofficial 2KB bank, treated as one partial 8KB bank
	case 0x02:
		return 1, nil
	case 0x03:
		return 4, nil
	case 0x04:
		return 16, nil
	case 0x05:
		return 8, nil
	default:
		return 0, &InvalidCartridgeError{Reason: fmt.Sprintf("unsupported ram size byte 0x%02X", b)}
	}
}

// cleanGameboyTitle converts a raw header title field into a printable ASCII
// string: NUL padding becomes trimmed whitespace, non-ASCII bytes become '?'.
func cleanGameboyTitle(titleBytes []byte) string {
	runes := make([]rune, 0, len(titleBytes))
	for _, b := range titleBytes {
		switch {
		case b == 0:
			runes = append(runes, ' ')
		case b < 0x20 || b > 0x7E:
			runes = append(runes, '?')
		default:
			r := rune(b)
			if !unicode.IsPrint(r) {
				r = '?'
			}
			runes = append(runes, r)
		}
	}
	title := strings.TrimSpace(string(runes))
	if title == "" {
		return "(Untitled)"
	}
	return title
}
