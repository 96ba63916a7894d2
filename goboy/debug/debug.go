// Package debug exposes read-only snapshots of emulator state for
// frontends (terminal and SDL2 backends) to render as register/memory
// inspectors, plus helpers for dumping frames to disk.
package debug

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/arnegreiner/goboy/goboy/video"
)

// DebuggerState drives the step/pause control flow shared by every backend.
type DebuggerState int

const (
	DebuggerRunning DebuggerState = iota
	DebuggerPaused
	DebuggerStepInstruction
	DebuggerStepFrame
)

// CPUState is a snapshot of the LR35902 register file.
type CPUState struct {
	PC, SP                 uint16
	A, F, B, C, D, E, H, L uint8
	IME                    bool
	Halted                 bool
	Cycles                 uint64
}

// MemorySnapshot is a contiguous window of address space, used to feed a
// disassembly view centered on the program counter.
type MemorySnapshot struct {
	StartAddr uint16
	Bytes     []byte
}

// OAMData is the raw 160-byte sprite attribute table.
type OAMData struct {
	Bytes []byte
}

// VRAMData is the raw video RAM, tile data and tile maps included.
type VRAMData struct {
	Bytes []byte
}

// CompleteDebugData bundles every snapshot a debugger view needs for one frame.
type CompleteDebugData struct {
	CPU             *CPUState
	Memory          *MemorySnapshot
	OAM             *OAMData
	VRAM            *VRAMData
	DebuggerState   DebuggerState
	InterruptEnable uint8
	InterruptFlags  uint8
}

// SaveFramePNGToDir encodes frame as a PNG named baseName+".png" inside dir.
func SaveFramePNGToDir(frame *video.FrameBuffer, baseName, dir string) error {
	if frame == nil {
		return fmt.Errorf("debug: nil frame")
	}

	img := image.NewGray(image.Rect(0, 0, video.FramebufferWidth, video.FramebufferHeight))
	shades := frame.ToGrayscale()
	for i, shade := range shades {
		img.Pix[i] = 255 - shade*85
	}

	path := filepath.Join(dir, baseName+".png")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	return png.Encode(f, img)
}

// TakeSnapshot dumps frame to the current working directory, naming the
// file after the active test pattern when one is in use.
func TakeSnapshot(frame *video.FrameBuffer, testPattern bool, patternType int) error {
	if frame == nil {
		return fmt.Errorf("debug: no frame to snapshot")
	}

	stamp := time.Now().UnixNano()
	name := fmt.Sprintf("snapshot_%d", stamp)
	if testPattern {
		name = fmt.Sprintf("testpattern_%d_%d", patternType, stamp)
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	return SaveFramePNGToDir(frame, name, dir)
}
