package savestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnegreiner/goboy/goboy/cpu"
	"github.com/arnegreiner/goboy/goboy/memory"
)

func romWithHeader(title string, mbc3 bool) []byte {
	rom := make([]byte, 0x8000)
	copy(rom[0x0134:0x0143], title)
	if mbc3 {
		rom[0x0147] = 0x10 // MBC3+TIMER+RAM+BATTERY
		rom[0x0149] = 0x02 // 8KB RAM
	}
	rom[0x0148] = 0x00 // 32KB ROM, no banking needed
	sum := 0
	for i := 0x0134; i <= 0x014C; i++ {
		sum = sum - int(rom[i]) - 1
	}
	rom[0x014D] = byte(sum)
	return rom
}

func TestWriteLoadRoundTrip(t *testing.T) {
	rom := romWithHeader("POKEMON", false)
	cart, err := memory.NewCartridgeWithData(rom)
	require.NoError(t, err)

	mmu := memory.NewWithCartridge(cart)
	mmu.Write(0xC010, 0x42) // WRAM
	mmu.Write(0xFF80, 0x99) // HRAM

	cpuState := cpu.State{
		PC: 0x1234, SP: 0xFFFE,
		A: 0x01, F: 0xB0, B: 0x00, C: 0x13, D: 0x00, E: 0xD8, H: 0x01, L: 0x4D,
		IME:    true,
		Halted: false,
		Cycles: 999,
	}

	data, err := Write(cpuState, mmu, cart.Title)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	state, err := Load(data)
	require.NoError(t, err)

	assert.Equal(t, "POKEMON", state.Title)
	assert.Equal(t, memory.ModelDMG, state.Model)
	assert.Equal(t, cpuState.PC, state.CPU.PC)
	assert.Equal(t, cpuState.A, state.CPU.A)
	assert.Equal(t, cpuState.IME, state.CPU.IME)

	restored := memory.NewWithCartridge(cart)
	restored.Restore(state.MMU)
	assert.Equal(t, uint8(0x42), restored.Read(0xC010))
	assert.Equal(t, uint8(0x99), restored.Read(0xFF80))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	data := []byte("not a save state, too short for a footer check.")
	_, err := Load(data)
	require.Error(t, err)
	var invalid *InvalidSaveStateError
	assert.ErrorAs(t, err, &invalid)
}

func TestLoadRejectsUnknownBlockTag(t *testing.T) {
	rom := romWithHeader("TESTROM", false)
	cart, err := memory.NewCartridgeWithData(rom)
	require.NoError(t, err)
	mmu := memory.NewWithCartridge(cart)

	data, err := Write(cpu.State{}, mmu, cart.Title)
	require.NoError(t, err)

	// Corrupt the END tag into something unrecognized; the footer still
	// points at the same first-block offset so the reader finds it.
	endIdx := -1
	for i := 0; i+4 <= len(data); i++ {
		if string(data[i:i+4]) == tagEND {
			endIdx = i
			break
		}
	}
	require.NotEqual(t, -1, endIdx)
	copy(data[endIdx:endIdx+4], []byte("ZZZZ"))

	_, err = Load(data)
	require.Error(t, err)
}

func TestMBC3RTCRoundTrip(t *testing.T) {
	rom := romWithHeader("RTCGAME", true)
	cart, err := memory.NewCartridgeWithData(rom)
	require.NoError(t, err)

	mmu := memory.NewWithCartridge(cart)

	data, err := Write(cpu.State{}, mmu, cart.Title)
	require.NoError(t, err)

	state, err := Load(data)
	require.NoError(t, err)

	restored := memory.NewWithCartridge(cart)
	restored.Restore(state.MMU)

	require.True(t, state.MMU.HasRTC, "MBC3+RTC cartridges must carry an RTC block")
}
