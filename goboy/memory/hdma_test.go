package memory

import (
	"testing"

	"github.com/arnegreiner/goboy/goboy/addr"
)

func newCGBTestMMU() *MMU {
	return NewWithModel(ModelCGB)
}

// TestHDMA_GeneralPurposeTransferCompletesImmediately checks that writing
// HDMA5 with bit7 clear (GDMA mode) copies the whole requested length in one
// shot, synchronously, rather than waiting for HBlank notifications.
func TestHDMA_GeneralPurposeTransferCompletesImmediately(t *testing.T) {
	m := newCGBTestMMU()

	for i := uint16(0); i < 32; i++ {
		m.Write(0xC000+i, uint8(0x10+i))
	}

	m.Write(addr.HDMA1, 0xC0) // source hi
	m.Write(addr.HDMA2, 0x00) // source lo
	m.Write(addr.HDMA3, 0x00) // dest hi (offset within VRAM, upper 5 bits only)
	m.Write(addr.HDMA4, 0x00) // dest lo
	m.Write(addr.HDMA5, 0x01) // length = (1+1)*16 = 32 bytes, bit7=0 (GDMA)

	if m.hdma.active {
		t.Fatalf("GDMA transfer should run to completion synchronously, not stay active")
	}
	for i := uint16(0); i < 32; i++ {
		want := uint8(0x10 + i)
		got := m.vramBanks[m.vbk&0x01][i]
		if got != want {
			t.Fatalf("vram[%d] = 0x%02X; want 0x%02X", i, got, want)
		}
	}
	if status := m.Read(addr.HDMA5); status != 0xFF {
		t.Fatalf("HDMA5 after completed transfer = 0x%02X; want 0xFF", status)
	}
}

// TestHDMA_HBlankPacedTransferCopiesInChunks checks that an HBlank-mode
// transfer (bit7 set) copies exactly 16 bytes per NotifyHBlank call and
// reports remaining-chunks via HDMA5 until it completes.
func TestHDMA_HBlankPacedTransferCopiesInChunks(t *testing.T) {
	m := newCGBTestMMU()

	for i := uint16(0); i < 32; i++ {
		m.Write(0xC000+i, uint8(i))
	}

	m.Write(addr.HDMA1, 0xC0)
	m.Write(addr.HDMA2, 0x00)
	m.Write(addr.HDMA3, 0x00)
	m.Write(addr.HDMA4, 0x00)
	m.Write(addr.HDMA5, 0x81) // length = 32 bytes, bit7=1 (HBlank-paced)

	if !m.hdma.active {
		t.Fatalf("HBlank-paced transfer should stay active until HBlank advances it")
	}
	if got := m.Read(addr.HDMA5); got&0x80 != 0 {
		t.Fatalf("HDMA5 should report bit7 clear while a transfer is in progress, got 0x%02X", got)
	}

	m.hdma.NotifyHBlank()
	for i := uint16(0); i < 16; i++ {
		if got := m.vramBanks[m.vbk&0x01][i]; got != uint8(i) {
			t.Fatalf("vram[%d] after first HBlank chunk = 0x%02X; want 0x%02X", i, got, uint8(i))
		}
	}
	if got := m.vramBanks[m.vbk&0x01][16]; got != 0 {
		t.Fatalf("second chunk must not be copied before the next HBlank: vram[16] = 0x%02X", got)
	}
	if !m.hdma.active {
		t.Fatalf("transfer should still be active after only one HBlank chunk")
	}

	m.hdma.NotifyHBlank()
	if m.hdma.active {
		t.Fatalf("transfer should be complete after both 16-byte chunks")
	}
	for i := uint16(0); i < 32; i++ {
		if got := m.vramBanks[m.vbk&0x01][i]; got != uint8(i) {
			t.Fatalf("vram[%d] after second HBlank chunk = 0x%02X; want 0x%02X", i, got, uint8(i))
		}
	}
}

// TestHDMA_ClearingBit7CancelsHBlankTransfer checks that writing HDMA5 with
// bit7 clear while an HBlank-paced transfer is running cancels it in place,
// rather than starting a new GDMA copy.
func TestHDMA_ClearingBit7CancelsHBlankTransfer(t *testing.T) {
	m := newCGBTestMMU()

	m.Write(addr.HDMA1, 0xC0)
	m.Write(addr.HDMA2, 0x00)
	m.Write(addr.HDMA3, 0x00)
	m.Write(addr.HDMA4, 0x00)
	m.Write(addr.HDMA5, 0x81)

	m.hdma.NotifyHBlank()
	if !m.hdma.active {
		t.Fatalf("transfer should still have one chunk left")
	}

	m.Write(addr.HDMA5, 0x00)
	if m.hdma.active {
		t.Fatalf("writing HDMA5 with bit7 clear mid-transfer should cancel it")
	}
}
