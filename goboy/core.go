// Package jeebie implements the root Game Boy (DMG/MGB/CGB) emulator: it
// wires a CPU to an MMU and a GPU and drives them in lockstep, one frame
// at a time, and exposes the debugger controls and snapshots every backend
// needs to present that state.
package jeebie

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/arnegreiner/goboy/goboy/addr"
	"github.com/arnegreiner/goboy/goboy/audio"
	"github.com/arnegreiner/goboy/goboy/cpu"
	"github.com/arnegreiner/goboy/goboy/debug"
	"github.com/arnegreiner/goboy/goboy/input/action"
	"github.com/arnegreiner/goboy/goboy/memory"
	"github.com/arnegreiner/goboy/goboy/savestate"
	"github.com/arnegreiner/goboy/goboy/timing"
	"github.com/arnegreiner/goboy/goboy/video"
)

// cyclesPerFrame is the number of base clocks one 59.7Hz Game Boy frame takes.
const cyclesPerFrame = timing.CyclesPerFrame

// DMG is the root struct and entry point for running the emulation. The
// name follows hardware convention (DMG is the original Game Boy's model
// code) even though the same struct now also drives MGB/CGB sessions,
// since MMU.Model selects the hardware revision underneath it.
type DMG struct {
	cpu *cpu.CPU
	gpu *video.GPU
	mem *memory.MMU

	limiter timing.Limiter

	// Debugger state
	debuggerState    debug.DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
}

func (d *DMG) init(mem *memory.MMU) {
	d.cpu = cpu.New(mem)
	d.gpu = video.NewGpu(mem)
	d.mem = mem
	d.limiter = timing.NewNoOpLimiter()
}

// New creates a new emulator instance with an empty cartridge slot.
func New() *DMG {
	d := &DMG{}
	d.init(memory.NewWithCartridge(memory.NewCartridge()))
	return d
}

// NewWithFile creates a new emulator instance and loads the file specified into it.
func NewWithFile(path string) (*DMG, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cartridge: %w", err)
	}

	d := &DMG{}
	d.init(memory.NewWithCartridge(cart))

	return d, nil
}

// SetFrameLimiter installs the pacing strategy RunUntilFrame waits on
// between frames. Pass nil to run unthrottled (benchmarks, headless batch runs).
func (d *DMG) SetFrameLimiter(limiter timing.Limiter) {
	if limiter == nil {
		limiter = timing.NewNoOpLimiter()
	}
	d.limiter = limiter
}

// ResetFrameTiming clears accumulated drift in the active frame limiter,
// useful right after unpausing so the next frame isn't rushed to catch up.
func (d *DMG) ResetFrameTiming() {
	d.limiter.Reset()
}

func (d *DMG) step() int {
	cycles := d.cpu.Step()

	// The PPU's dot clock runs at a fixed real-time rate regardless of CPU
	// speed; in CGB double-speed mode the CPU consumes twice as many cycle
	// units per unit of wall time, so it must only feed the PPU half of
	// them. Timer/DMA/serial/APU are ticked with the raw count inside
	// MMU.Tick since those peripherals do speed up with the CPU.
	gpuCycles := cycles
	if d.mem.DoubleSpeed() {
		gpuCycles /= 2
	}
	d.gpu.Tick(gpuCycles)
	d.instructionCount++
	return cycles
}

// RunUntilFrame advances emulation until a full frame has been produced,
// honoring the debugger's pause/step/step-frame state.
func (d *DMG) RunUntilFrame() error {
	d.debuggerMutex.RLock()
	state := d.debuggerState
	d.debuggerMutex.RUnlock()

	switch state {
	case debug.DebuggerPaused:
		return nil

	case debug.DebuggerStepInstruction:
		d.debuggerMutex.Lock()
		requested := d.stepRequested
		d.stepRequested = false
		d.debuggerMutex.Unlock()

		if !requested {
			return nil
		}

		oldPC := d.cpu.GetPC()
		d.step()
		slog.Debug("Step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", d.cpu.GetPC()))
		d.SetDebuggerState(debug.DebuggerPaused)
		return nil

	case debug.DebuggerStepFrame:
		d.debuggerMutex.Lock()
		requested := d.frameRequested
		d.frameRequested = false
		d.debuggerMutex.Unlock()

		if !requested {
			return nil
		}

		d.runFrame()
		slog.Debug("Frame step completed", "frame", d.frameCount, "instructions", d.instructionCount)
		d.SetDebuggerState(debug.DebuggerPaused)
		return nil

	default:
		d.limiter.WaitForNextFrame()
		d.runFrame()
		return nil
	}
}

func (d *DMG) runFrame() {
	target := cyclesPerFrame
	if d.mem.DoubleSpeed() {
		target *= 2
	}

	total := 0
	for total < target {
		total += d.step()
	}
	d.frameCount++
	if d.frameCount%60 == 0 {
		slog.Debug("Frame completed", "frame", d.frameCount, "pc", fmt.Sprintf("0x%04X", d.cpu.GetPC()))
	}
}

func (d *DMG) GetCurrentFrame() *video.FrameBuffer {
	return d.gpu.GetFrameBuffer()
}

// HandleAction applies a Game Boy hardware control; pressed distinguishes
// key-down from key-up. Non-hardware actions (debugger toggles, snapshots)
// are a backend's own concern and are ignored here.
func (d *DMG) HandleAction(act action.Action, pressed bool) {
	key, ok := gbJoypadKey(act)
	if !ok {
		return
	}

	if pressed {
		d.mem.HandleKeyPress(key)
	} else {
		d.mem.HandleKeyRelease(key)
	}
}

func gbJoypadKey(act action.Action) (memory.JoypadKey, bool) {
	switch act {
	case action.GBButtonA:
		return memory.JoypadA, true
	case action.GBButtonB:
		return memory.JoypadB, true
	case action.GBButtonStart:
		return memory.JoypadStart, true
	case action.GBButtonSelect:
		return memory.JoypadSelect, true
	case action.GBDPadUp:
		return memory.JoypadUp, true
	case action.GBDPadDown:
		return memory.JoypadDown, true
	case action.GBDPadLeft:
		return memory.JoypadLeft, true
	case action.GBDPadRight:
		return memory.JoypadRight, true
	default:
		return 0, false
	}
}

func (d *DMG) HandleKeyPress(key memory.JoypadKey) {
	d.mem.HandleKeyPress(key)
}

func (d *DMG) HandleKeyRelease(key memory.JoypadKey) {
	d.mem.HandleKeyRelease(key)
}

func (d *DMG) GetCPU() *cpu.CPU {
	return d.cpu
}

func (d *DMG) GetMMU() *memory.MMU {
	return d.mem
}

// GetAPU returns the active APU instance for audio playback backends.
func (d *DMG) GetAPU() *audio.APU {
	return d.mem.APU
}

// Debugger control methods
func (d *DMG) SetDebuggerState(state debug.DebuggerState) {
	d.debuggerMutex.Lock()
	defer d.debuggerMutex.Unlock()
	d.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (d *DMG) GetDebuggerState() debug.DebuggerState {
	d.debuggerMutex.RLock()
	defer d.debuggerMutex.RUnlock()
	return d.debuggerState
}

func (d *DMG) DebuggerPause() {
	d.SetDebuggerState(debug.DebuggerPaused)
	slog.Info("Emulator paused")
}

func (d *DMG) DebuggerResume() {
	d.SetDebuggerState(debug.DebuggerRunning)
	slog.Info("Emulator resumed")
}

func (d *DMG) DebuggerStepInstruction() {
	d.debuggerMutex.Lock()
	defer d.debuggerMutex.Unlock()
	d.stepRequested = true
	d.debuggerState = debug.DebuggerStepInstruction
	slog.Info("Step instruction requested")
}

func (d *DMG) DebuggerStepFrame() {
	d.debuggerMutex.Lock()
	defer d.debuggerMutex.Unlock()
	d.frameRequested = true
	d.debuggerState = debug.DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (d *DMG) GetInstructionCount() uint64 {
	return d.instructionCount
}

func (d *DMG) GetFrameCount() uint64 {
	return d.frameCount
}

// SaveState encodes the current machine state as a BESS-shaped save-state
// blob, suitable for writing to disk and restoring later with LoadState.
func (d *DMG) SaveState() ([]byte, error) {
	title := ""
	if cart := d.mem.Cartridge(); cart != nil {
		title = cart.Title
	}
	return savestate.Write(d.cpu.State(), d.mem, title)
}

// LoadState restores CPU and MMU state from a blob produced by SaveState.
func (d *DMG) LoadState(data []byte) error {
	state, err := savestate.Load(data)
	if err != nil {
		return fmt.Errorf("failed to load save state: %w", err)
	}

	d.cpu.Restore(state.CPU)
	d.mem.Restore(state.MMU)
	return nil
}

// ExtractDebugData snapshots the CPU registers, a memory window of up to
// 200 bytes starting at PC, OAM and VRAM for a debugger view. Returns nil
// when the CPU or MMU has not been set up (a zero-value DMG).
func (d *DMG) ExtractDebugData() *debug.CompleteDebugData {
	if d.cpu == nil || d.mem == nil {
		return nil
	}

	regA, regF, regB, regC, regD, regE, regH, regL := d.cpu.Registers()
	cpuState := &debug.CPUState{
		PC:     d.cpu.GetPC(),
		SP:     d.cpu.GetSP(),
		A:      regA,
		F:      regF,
		B:      regB,
		C:      regC,
		D:      regD,
		E:      regE,
		H:      regH,
		L:      regL,
		IME:    d.cpu.IME(),
		Halted: d.cpu.Halted(),
		Cycles: d.cpu.Cycles(),
	}

	const snapshotSize = 200
	pc := d.cpu.GetPC()
	size := snapshotSize
	if uint32(pc)+uint32(size) > 0x10000 {
		size = int(0x10000 - uint32(pc))
	}
	memBytes := make([]byte, size)
	for i := 0; i < size; i++ {
		memBytes[i] = d.mem.Read(pc + uint16(i))
	}

	oam := make([]byte, addr.OAMEnd-addr.OAMStart+1)
	for i := range oam {
		oam[i] = d.mem.Read(addr.OAMStart + uint16(i))
	}

	vram := make([]byte, 0x2000)
	for i := range vram {
		vram[i] = d.mem.Read(addr.TileData0 + uint16(i))
	}

	return &debug.CompleteDebugData{
		CPU:             cpuState,
		Memory:          &debug.MemorySnapshot{StartAddr: pc, Bytes: memBytes},
		OAM:             &debug.OAMData{Bytes: oam},
		VRAM:            &debug.VRAMData{Bytes: vram},
		DebuggerState:   d.GetDebuggerState(),
		InterruptEnable: d.mem.Read(addr.IE),
		InterruptFlags:  d.mem.Read(addr.IF),
	}
}
