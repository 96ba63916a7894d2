//go:build sdl2

package sdl2

import (
	"fmt"
	"unsafe"

	"github.com/arnegreiner/goboy/goboy/debug"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	debugWindowWidth  = 256
	debugWindowHeight = 256
)

// DebugWindow is a secondary SDL2 window that renders the raw OAM and VRAM
// snapshots as a grayscale byte grid. It opens lazily on first toggle and
// is independent of the main Game Boy screen's lifecycle.
type DebugWindow struct {
	window      *sdl.Window
	renderer    *sdl.Renderer
	texture     *sdl.Texture
	initialized bool
	visible     bool

	pixelBuffer []byte
	oam         *debug.OAMData
	vram        *debug.VRAMData
}

// NewDebugWindow returns an uninitialized debug window; call Init before use.
func NewDebugWindow() *DebugWindow {
	return &DebugWindow{}
}

// IsInitialized reports whether the SDL2 window/renderer/texture exist.
func (w *DebugWindow) IsInitialized() bool { return w.initialized }

// IsVisible reports whether the window is currently shown.
func (w *DebugWindow) IsVisible() bool { return w.visible }

// Init creates the backing SDL2 window, renderer and texture. Safe to call
// more than once; later calls are no-ops.
func (w *DebugWindow) Init() error {
	if w.initialized {
		return nil
	}

	window, err := sdl.CreateWindow(
		"goboy debug",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		debugWindowWidth,
		debugWindowHeight,
		sdl.WINDOW_HIDDEN,
	)
	if err != nil {
		return fmt.Errorf("failed to create debug window: %v", err)
	}
	w.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		return fmt.Errorf("failed to create debug renderer: %v", err)
	}
	w.renderer = renderer

	texture, err := renderer.CreateTexture(
		sdl.PIXELFORMAT_RGBA8888,
		sdl.TEXTUREACCESS_STREAMING,
		debugWindowWidth,
		debugWindowHeight,
	)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		return fmt.Errorf("failed to create debug texture: %v", err)
	}
	w.texture = texture

	w.pixelBuffer = make([]byte, debugWindowWidth*debugWindowHeight*4)
	w.initialized = true
	return nil
}

// SetVisible shows or hides the debug window.
func (w *DebugWindow) SetVisible(visible bool) {
	if !w.initialized {
		return
	}
	w.visible = visible
	if visible {
		w.window.Show()
	} else {
		w.window.Hide()
	}
}

// UpdateData replaces the byte snapshots the next Render call will draw.
func (w *DebugWindow) UpdateData(oam *debug.OAMData, vram *debug.VRAMData) {
	w.oam = oam
	w.vram = vram
}

// ProcessEvent lets the debug window react to its own close button without
// touching the main emulator window's state.
func (w *DebugWindow) ProcessEvent(evt sdl.Event) {
	if !w.initialized {
		return
	}
	we, ok := evt.(*sdl.WindowEvent)
	if !ok {
		return
	}
	if we.WindowID != w.window.GetID() {
		return
	}
	if we.Event == sdl.WINDOWEVENT_CLOSE {
		w.SetVisible(false)
	}
}

// fillBytes writes data into the pixel grid starting at pixel offset start,
// one grayscale pixel per byte, and returns the offset just past what it wrote.
func (w *DebugWindow) fillBytes(data []byte, start int) int {
	for i, b := range data {
		idx := (start + i) * 4
		if idx+3 >= len(w.pixelBuffer) {
			break
		}
		w.pixelBuffer[idx] = 0xFF   // alpha
		w.pixelBuffer[idx+1] = b    // blue
		w.pixelBuffer[idx+2] = b    // green
		w.pixelBuffer[idx+3] = b    // red
	}
	return start + len(data)
}

// Render redraws the byte grid from the last UpdateData call, if visible.
func (w *DebugWindow) Render() {
	if !w.initialized || !w.visible {
		return
	}

	for i := range w.pixelBuffer {
		w.pixelBuffer[i] = 0
	}

	next := 0
	if w.vram != nil {
		next = w.fillBytes(w.vram.Bytes, next)
	}
	if w.oam != nil {
		w.fillBytes(w.oam.Bytes, next)
	}

	w.texture.Update(nil, unsafe.Pointer(&w.pixelBuffer[0]), debugWindowWidth*4)
	w.renderer.SetDrawColor(0, 0, 0, 0xFF)
	w.renderer.Clear()
	w.renderer.Copy(w.texture, nil, nil)
	w.renderer.Present()
}

// Cleanup destroys the window's SDL2 resources, if created.
func (w *DebugWindow) Cleanup() error {
	if !w.initialized {
		return nil
	}
	if w.texture != nil {
		w.texture.Destroy()
	}
	if w.renderer != nil {
		w.renderer.Destroy()
	}
	if w.window != nil {
		w.window.Destroy()
	}
	w.initialized = false
	w.visible = false
	return nil
}
