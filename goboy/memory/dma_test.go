package memory

import (
	"testing"

	"github.com/arnegreiner/goboy/goboy/addr"
)

// TestDMA_MaskedReadDuringTransfer writes the OAM DMA trigger register,
// ticks partway through the 160 M-cycle transfer, and asserts that a
// CPU-path read anywhere in OAM returns 0xFF while the copy is still
// running, per the real hardware's bus-steal behavior.
func TestDMA_MaskedReadDuringTransfer(t *testing.T) {
	m := New()

	// Seed the source page (0xC000-0xC09F) with recognizable bytes so a
	// completed transfer would be observably different from 0xFF.
	for i := uint16(0); i < 160; i++ {
		m.Write(0xC000+i, uint8(i+1))
	}

	m.Write(addr.DMA, 0xC0)
	if !m.dma.active {
		t.Fatalf("writing DMA trigger should start an active transfer")
	}

	// Tick partway through the transfer (well short of the full 640 clocks).
	m.Tick(40)
	if !m.dma.active {
		t.Fatalf("transfer should still be active after only 40 clocks")
	}

	for a := addr.OAMStart; a <= addr.OAMEnd; a++ {
		if got := m.Read(a); got != 0xFF {
			t.Fatalf("Read(0x%04X) during active DMA = 0x%02X; want 0xFF (masked)", a, got)
		}
	}

	// Writes during the transfer are dropped too.
	before := m.memory[addr.OAMStart]
	m.Write(addr.OAMStart, 0x42)
	if m.memory[addr.OAMStart] != before {
		t.Fatalf("write to OAM during active DMA should be dropped")
	}

	// Run the transfer to completion and confirm the mask lifts and the
	// copied bytes match the source page.
	m.Tick(640)
	if m.dma.active {
		t.Fatalf("transfer should have completed after 640 clocks")
	}
	for i := uint16(0); i < 160; i++ {
		want := uint8(i + 1)
		if got := m.Read(addr.OAMStart + i); got != want {
			t.Fatalf("Read(0x%04X) after DMA completion = 0x%02X; want 0x%02X", addr.OAMStart+i, got, want)
		}
	}
}

// TestDMA_RestartMidTransferUsesNewSource confirms that writing FF46 again
// while a transfer is running restarts the copy from the new source rather
// than queuing a second one or finishing the old one.
func TestDMA_RestartMidTransferUsesNewSource(t *testing.T) {
	m := New()

	for i := uint16(0); i < 160; i++ {
		m.Write(0xC000+i, 0xAA)
		m.Write(0xC100+i, 0xBB)
	}

	m.Write(addr.DMA, 0xC0)
	m.Tick(40) // partway through copying the 0xAA page

	m.Write(addr.DMA, 0xC1)
	if m.dma.progress != 0 {
		t.Fatalf("restarting DMA should reset progress to 0, got %d", m.dma.progress)
	}

	m.Tick(640)
	for i := uint16(0); i < 160; i++ {
		if got := m.Read(addr.OAMStart + i); got != 0xBB {
			t.Fatalf("Read(0x%04X) after restart = 0x%02X; want 0xBB", addr.OAMStart+i, got)
		}
	}
}

// TestDMA_UnusableRegionAlwaysReadsFF checks that the 0xFEA0-0xFEFF strip
// above OAM reads as 0xFF regardless of an in-progress transfer, since it's
// never part of the 160-byte copy.
func TestDMA_UnusableRegionAlwaysReadsFF(t *testing.T) {
	m := New()
	if got := m.Read(0xFEA0); got != 0xFF {
		t.Fatalf("Read(0xFEA0) = 0x%02X; want 0xFF", got)
	}

	m.Write(addr.DMA, 0xC0)
	if got := m.Read(0xFEFF); got != 0xFF {
		t.Fatalf("Read(0xFEFF) during active DMA = 0x%02X; want 0xFF", got)
	}
}
