// Package app implements the interactive viewer loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/engine/camera"
	"github.com/Faultbox/mjtraj/internal/engine/input"
	"github.com/Faultbox/mjtraj/internal/engine/renderer"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/engine/window"
	"github.com/Faultbox/mjtraj/internal/export"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/watch"
	"github.com/Faultbox/mjtraj/internal/workspace"
)

// App is the viewer window with its render loop.
type App struct {
	cfg      *config.Config
	ws       *workspace.Workspace
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input

	orbit *camera.OrbitCamera
	// modelCams are the model's named cameras; camIndex -1 selects orbit.
	modelCams []*camera.ModelCamera
	camIndex  int

	changes <-chan watch.Change
	log     *zap.Logger
}

// New creates the window and renderer for ws.
func New(cfg *config.Config, ws *workspace.Workspace) (*App, error) {
	a := &App{
		cfg:      cfg,
		ws:       ws,
		camIndex: -1,
		log:      logger.Named("app"),
	}
	a.log.Info("initializing viewer",
		zap.Int("width", cfg.Graphics.Width),
		zap.Int("height", cfg.Graphics.Height),
	)

	// Create window (this also creates OpenGL context)
	var err error
	a.window, err = window.New(window.Config{
		Title:      "mjtraj",
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Create renderer (AFTER window, since OpenGL context must exist)
	w, h := a.window.DrawableSize()
	a.renderer, err = renderer.New(renderer.DefaultConfig(w, h))
	if err != nil {
		a.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	a.input = input.New()
	a.orbit = camera.NewOrbitCamera(ws.Viewer.Transform())
	a.rebuildCameras()

	a.log.Info("viewer initialized")
	return a, nil
}

// Watch makes Run apply changes from ch between frames.
func (a *App) Watch(ch <-chan watch.Change) {
	a.changes = ch
}

// Run starts the render loop and returns when the window is closed or ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.running = true

	// Timing
	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()
	var budget time.Duration
	if a.cfg.Graphics.FPSLimit > 0 && !a.cfg.Graphics.VSync {
		budget = time.Second / time.Duration(a.cfg.Graphics.FPSLimit)
	}

	a.log.Info("starting render loop")

	for a.running {
		if ctx.Err() != nil {
			break
		}
		now := time.Now()
		dt := now.Sub(lastTime)
		lastTime = now

		// 1. Process input
		if a.input.Update() {
			break
		}
		for _, ev := range a.input.Events() {
			a.handleEvent(ctx, ev)
		}

		// 2. Apply file changes
		a.drainChanges(ctx)

		// 3. Advance playback
		a.ws.Viewer.Tick(ctx, dt)

		// 4. Render
		w, h := a.window.DrawableSize()
		a.renderer.Draw(a.ws.Viewer, a.view(), w, h)
		a.window.SwapBuffers()

		// FPS counter
		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			a.window.SetTitle(a.title(frameCount))
			a.log.Debug("fps", zap.Int("count", frameCount), zap.Duration("dt", dt))
			frameCount = 0
			fpsTimer = time.Now()
		}

		if budget > 0 {
			if rest := budget - time.Since(now); rest > 0 {
				time.Sleep(rest)
			}
		}
	}

	return nil
}

// Close cleans up viewer resources.
func (a *App) Close() {
	a.log.Info("closing viewer")

	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.window != nil {
		a.window.Close()
	}
}

func (a *App) title(fps int) string {
	c := a.ws.Viewer.Clock()
	state := "paused"
	if c.Playing() {
		state = "playing"
	}
	return fmt.Sprintf("mjtraj - frame %.0f/%.0f - %s x%.2g - %d fps",
		c.Frame(), a.ws.Viewer.LastFrame(), state, c.Speed(), fps)
}

func (a *App) view() camera.View {
	if a.camIndex >= 0 && a.camIndex < len(a.modelCams) {
		mc := a.modelCams[a.camIndex]
		mc.Update(a.activeScene())
		return mc
	}
	return a.orbit
}

// activeScene is the scene model cameras follow: the first visible
// instance, or the base scene.
func (a *App) activeScene() *scene.Scene {
	for _, inst := range a.ws.Viewer.Instances() {
		if inst.Visible() {
			return inst.Scene
		}
	}
	return a.ws.Viewer.Base()
}

func (a *App) rebuildCameras() {
	a.modelCams = a.modelCams[:0]
	if base := a.ws.Viewer.Base(); base != nil {
		for _, c := range base.Cameras {
			a.modelCams = append(a.modelCams, camera.NewModelCamera(c))
		}
	}
	if a.camIndex >= len(a.modelCams) {
		a.camIndex = -1
	}
}

// Button state masks for motion events.
const (
	leftMask  uint32 = 1 << (sdl.BUTTON_LEFT - 1)
	rightMask uint32 = 1 << (sdl.BUTTON_RIGHT - 1)
)

func (a *App) handleEvent(ctx context.Context, ev input.Event) {
	switch ev.Type {
	case input.EventWindowResize:
		w, h := a.window.DrawableSize()
		a.renderer.Resize(w, h)

	case input.EventMouseMove:
		switch {
		case ev.Buttons&rightMask != 0,
			ev.Buttons&leftMask != 0 && uint32(sdl.GetModState())&uint32(sdl.KMOD_SHIFT) != 0:
			a.orbit.HandlePan(float32(ev.DeltaX), float32(ev.DeltaY))
		case ev.Buttons&leftMask != 0:
			a.orbit.HandleDrag(float32(ev.DeltaX), float32(ev.DeltaY))
		}

	case input.EventMouseWheel:
		a.orbit.HandleZoom(float32(ev.DeltaY))

	case input.EventDrop:
		a.handleDrop(ctx, ev.Path)

	case input.EventKeyDown:
		action, index := ActionFor(ev)
		if ApplyPlayback(a.ws.Viewer, action, index, ev.Shift) {
			return
		}
		switch action {
		case ActionQuit:
			a.running = false
		case ActionResetCamera:
			a.camIndex = -1
			a.orbit.Reset(a.ws.Viewer.Transform())
		case ActionFitCamera:
			if b, ok := scene.WorldBounds(a.ws.Viewer.Scenes()); ok {
				a.camIndex = -1
				a.orbit.FitToBounds(b)
			}
		case ActionNextCamera:
			a.camIndex++
			if a.camIndex >= len(a.modelCams) {
				a.camIndex = -1
			}
		case ActionScreenshot:
			a.screenshot(ctx)
		case ActionExport:
			a.exportVideo(ctx)
		}
	}
}

func (a *App) handleDrop(ctx context.Context, path string) {
	switch {
	case watch.IsTrajectoryFile(path):
		if _, err := a.ws.Add(path); err != nil {
			a.log.Warn("dropped trajectory rejected", zap.String("path", path), zap.Error(err))
		}
	case isModelFile(path):
		prev := a.ws.ModelPath
		a.ws.ModelPath = path
		if err := a.ws.ReloadModel(ctx); err != nil {
			a.ws.ModelPath = prev
			a.log.Warn("dropped model rejected", zap.String("path", path), zap.Error(err))
			return
		}
		a.renderer.Reset()
		a.rebuildCameras()
	default:
		a.log.Warn("unsupported file dropped", zap.String("path", path))
	}
}

func isModelFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (a *App) drainChanges(ctx context.Context) {
	for a.changes != nil {
		select {
		case c, ok := <-a.changes:
			if !ok {
				a.changes = nil
				return
			}
			if err := a.ws.Reload(ctx, c); err != nil {
				a.log.Warn("reload failed", zap.String("path", c.Path), zap.Stringer("kind", c.Kind), zap.Error(err))
				continue
			}
			if c.Kind == watch.KindModel {
				a.renderer.Reset()
				a.rebuildCameras()
			}
		default:
			return
		}
	}
}

func (a *App) screenshot(ctx context.Context) {
	w, h := a.window.DrawableSize()
	a.renderer.View = a.view()
	img, err := a.renderer.RenderFrame(ctx, a.ws.Viewer, w, h)
	if err != nil {
		a.log.Error("screenshot failed", zap.Error(err))
		return
	}
	path, err := export.Screenshot(a.cfg.Export.OutputDir, "screenshot", img)
	if err != nil {
		a.log.Error("screenshot failed", zap.Error(err))
		return
	}
	a.log.Info("screenshot saved", zap.String("path", path))
}

// exportVideo renders every loaded trajectory to an MP4 in the output
// directory. The render loop blocks until the export finishes.
func (a *App) exportVideo(ctx context.Context) {
	ec := a.cfg.Export
	enc := export.NewFFmpeg(export.FFmpegOptions{Binary: ec.FFmpeg, Preset: ec.Preset, CRF: ec.CRF})
	a.renderer.View = a.view()
	exp := export.New(a.ws.Viewer, a.renderer, enc)

	opts := export.Options{
		Path:   filepath.Join(ec.OutputDir, fmt.Sprintf("trajectory_%s.mp4", time.Now().Format("20060102_150405"))),
		FPS:    ec.FPS,
		Width:  ec.Width,
		Height: ec.Height,
	}
	clock := a.ws.Viewer.Clock()
	wasPlaying := clock.Playing()
	clock.Pause()
	defer func() {
		if wasPlaying {
			clock.Play()
		}
		a.window.SetTitle("mjtraj")
	}()

	// The render loop is blocked while exporting, so input is polled from
	// the progress callback.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lastPct := -1
	res, err := exp.Export(ctx, opts, func(done, total int) {
		a.input.Update()
		if abort, quit := ExportAbort(a.input.Events()); abort {
			a.log.Info("export cancelled from viewer", zap.Bool("quit", quit))
			if quit {
				a.running = false
			}
			cancel()
			return
		}
		if pct := done * 100 / max(total, 1); pct/10 != lastPct/10 {
			lastPct = pct
			a.window.SetTitle(fmt.Sprintf("mjtraj - exporting %d%% (Esc to cancel)", pct))
		}
	})
	if errors.Is(err, context.Canceled) {
		a.log.Info("export aborted, partial output removed", zap.String("path", opts.Path))
		return
	}
	if err != nil {
		a.log.Error("export failed", zap.Error(err))
		return
	}
	a.log.Info("video exported",
		zap.String("path", res.Path),
		zap.Int64("size", res.Size),
		zap.Int("frames", res.Frames))
}
