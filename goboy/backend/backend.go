// Package backend defines the contract every presentation layer (terminal,
// SDL2, headless) implements so the driver loop in cmd/goboy can stay
// agnostic of how frames actually reach the screen.
package backend

import (
	"github.com/arnegreiner/goboy/goboy/audio"
	"github.com/arnegreiner/goboy/goboy/debug"
	"github.com/arnegreiner/goboy/goboy/input/action"
	"github.com/arnegreiner/goboy/goboy/input/event"
	"github.com/arnegreiner/goboy/goboy/video"
)

// InputEvent is a single action transition a backend observed (a key press,
// release, or sustained hold) and wants the emulator to act on.
type InputEvent struct {
	Action action.Action
	Type   event.Type
}

// DebugDataProvider is implemented by the emulator so backends can pull a
// register/memory snapshot without depending on the jeebie package directly.
type DebugDataProvider interface {
	ExtractDebugData() *debug.CompleteDebugData
}

// BackendConfig carries the options every backend needs at Init time.
type BackendConfig struct {
	Title         string
	TestPattern   bool
	ShowDebug     bool
	DebugProvider DebugDataProvider
	AudioProvider audio.Provider
}

// Backend renders frames and reports input back to the driver loop. Update
// is called once per emulated frame; the returned events are actions the
// driver should apply (including EmulatorQuit to end the session).
type Backend interface {
	Init(config BackendConfig) error
	Update(frame *video.FrameBuffer) ([]InputEvent, error)
	Cleanup() error
}
