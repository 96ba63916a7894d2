package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"
	"github.com/arnegreiner/goboy/goboy"
	"github.com/arnegreiner/goboy/goboy/backend"
	"github.com/arnegreiner/goboy/goboy/backend/headless"
	"github.com/arnegreiner/goboy/goboy/backend/sdl2"
	"github.com/arnegreiner/goboy/goboy/backend/terminal"
	"github.com/arnegreiner/goboy/goboy/debug"
	"github.com/arnegreiner/goboy/goboy/input"
	"github.com/arnegreiner/goboy/goboy/input/action"
	"github.com/arnegreiner/goboy/goboy/input/event"
	"github.com/arnegreiner/goboy/goboy/timing"
)

func main() {
	app := cli.NewApp()
	app.Name = "goboy"
	app.Description = "A Game Boy (DMG/MGB/CGB) emulator"
	app.Usage = "goboy [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Presentation backend to use: terminal, sdl2, headless",
			Value: "terminal",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "test-pattern",
			Usage: "Display a test pattern instead of emulation (for debugging display)",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N frames (0 = disabled)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save frame snapshots (default: temp directory)",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "Save-state file to resume from at startup and write to on quit",
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else if !c.Bool("test-pattern") {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	testPattern := c.Bool("test-pattern")

	var emu *jeebie.DMG
	if !testPattern {
		var err error
		emu, err = jeebie.NewWithFile(romPath)
		if err != nil {
			return fmt.Errorf("failed to load ROM: %w", err)
		}
	} else {
		emu = jeebie.New()
	}

	savePath := c.String("save")
	if savePath != "" {
		if data, err := os.ReadFile(savePath); err == nil {
			if err := emu.LoadState(data); err != nil {
				slog.Warn("Failed to load save state, starting fresh", "path", savePath, "error", err)
			} else {
				slog.Info("Loaded save state", "path", savePath)
			}
		}
	}

	be, err := selectBackend(c, romPath)
	if err != nil {
		return err
	}

	config := backend.BackendConfig{
		Title:         "goboy",
		TestPattern:   testPattern,
		DebugProvider: emu,
		AudioProvider: emu.GetAPU(),
	}
	if err := be.Init(config); err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}
	defer be.Cleanup()

	emu.SetFrameLimiter(timing.NewAdaptiveLimiter())

	manager := input.NewManager(emu.GetMMU())
	manager.On(action.EmulatorQuit, event.Press, func() {})
	manager.On(action.EmulatorPauseToggle, event.Press, func() {
		if emu.GetDebuggerState() == debug.DebuggerPaused {
			emu.DebuggerResume()
			emu.ResetFrameTiming()
		} else {
			emu.DebuggerPause()
		}
	})

	if handler, ok := be.(backendActionHandler); ok {
		for _, act := range backendActions {
			act := act
			manager.On(act, event.Press, func() { handler.HandleBackendAction(act) })
		}
	}

	quit := false
	for !quit {
		if err := emu.RunUntilFrame(); err != nil {
			return err
		}

		frame := emu.GetCurrentFrame()
		events, err := be.Update(frame)
		if err != nil {
			return fmt.Errorf("backend update failed: %w", err)
		}

		for _, evt := range events {
			if evt.Action == action.EmulatorQuit {
				quit = true
				continue
			}
			manager.Trigger(evt.Action, evt.Type)
		}
	}

	if savePath != "" {
		data, err := emu.SaveState()
		if err != nil {
			return fmt.Errorf("failed to encode save state: %w", err)
		}
		if err := os.WriteFile(savePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write save state to %s: %w", savePath, err)
		}
		slog.Info("Wrote save state", "path", savePath)
	}

	return nil
}

// backendActionHandler is implemented by backends that support
// snapshots, debug toggles or test-pattern cycling beyond the plain
// Backend interface; the headless backend has no use for any of these.
type backendActionHandler interface {
	HandleBackendAction(act action.Action)
}

// backendActions lists every action the driver loop routes to a backend's
// HandleBackendAction instead of applying directly to the emulated hardware.
var backendActions = []action.Action{
	action.EmulatorSnapshot,
	action.EmulatorTestPatternCycle,
	action.EmulatorDebugToggle,
	action.EmulatorDebugUpdate,
	action.DebugLogLevelIncrease,
	action.DebugLogLevelDecrease,
	action.AudioToggleChannel1,
	action.AudioToggleChannel2,
	action.AudioToggleChannel3,
	action.AudioToggleChannel4,
	action.AudioSoloChannel1,
	action.AudioSoloChannel2,
	action.AudioSoloChannel3,
	action.AudioSoloChannel4,
	action.AudioShowStatus,
}

func selectBackend(c *cli.Context, romPath string) (backend.Backend, error) {
	switch c.String("backend") {
	case "headless":
		frames := c.Int("frames")
		if frames <= 0 {
			return nil, errors.New("headless backend requires --frames with a positive value")
		}

		snapshotConfig, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"), romPath)
		if err != nil {
			return nil, err
		}

		return headless.New(frames, snapshotConfig), nil

	case "sdl2":
		return sdl2.New(), nil

	case "terminal", "":
		return terminal.New(), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", c.String("backend"))
	}
}
