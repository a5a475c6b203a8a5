// Package export renders loaded trajectories frame by frame at a fixed output
// rate and streams the frames into an incremental video encoder.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/playback"
)

// Export errors.
var (
	ErrNoTrajectories = errors.New("export: no trajectories loaded")
	ErrSceneNotReady  = errors.New("export: scene not initialized")
	ErrInvalidOptions = errors.New("export: invalid options")
	ErrFrameSize      = errors.New("export: frame size does not match encoder")
)

// Options controls one export.
type Options struct {
	Path   string
	FPS    float64
	Width  int
	Height int
}

// Result describes a finished export.
type Result struct {
	Path   string
	Size   int64
	Frames int
}

// EncoderConfig is handed to Encoder.Begin.
type EncoderConfig struct {
	Path   string
	Width  int
	Height int
	FPS    float64
}

// Encoder consumes frames one at a time. WriteFrame returns only once the
// frame has been accepted, so at most one frame is in flight.
type Encoder interface {
	Begin(ctx context.Context, cfg EncoderConfig) error
	WriteFrame(ctx context.Context, img *image.RGBA) error
	// Finalize flushes and closes the output.
	Finalize(ctx context.Context) (*Result, error)
	// Abort stops encoding and discards partial output.
	Abort() error
}

// Renderer draws the current viewer state offscreen.
type Renderer interface {
	RenderFrame(ctx context.Context, v *playback.Viewer, width, height int) (*image.RGBA, error)
}

// ProgressFunc receives the number of frames done out of total.
type ProgressFunc func(done, total int)

// TotalFrames returns round(duration * fps).
func TotalFrames(duration, fps float64) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Round(duration * fps))
}

// Exporter drives a viewer, a renderer and an encoder.
type Exporter struct {
	viewer   *playback.Viewer
	renderer Renderer
	encoder  Encoder
	log      *zap.Logger
}

// New creates an exporter.
func New(v *playback.Viewer, r Renderer, enc Encoder) *Exporter {
	return &Exporter{
		viewer:   v,
		renderer: r,
		encoder:  enc,
		log:      logger.Named("export"),
	}
}

// Check validates preconditions without touching the encoder.
func (e *Exporter) Check(opts Options) error {
	if !e.viewer.Ready() {
		return ErrSceneNotReady
	}
	if len(e.viewer.Instances()) == 0 {
		return ErrNoTrajectories
	}
	if opts.FPS <= 0 || opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("%w: %gfps %dx%d", ErrInvalidOptions, opts.FPS, opts.Width, opts.Height)
	}
	return nil
}

// Export renders round(duration * fps) frames, where duration is the longest
// loaded trajectory, and feeds them to the encoder in order. Cancelling ctx
// aborts the encoder and discards the partial output.
func (e *Exporter) Export(ctx context.Context, opts Options, progress ProgressFunc) (*Result, error) {
	if err := e.Check(opts); err != nil {
		return nil, err
	}

	total := TotalFrames(e.viewer.Duration(), opts.FPS)
	e.log.Info("export started",
		zap.String("path", opts.Path),
		zap.Int("frames", total),
		zap.Float64("fps", opts.FPS),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height))

	cfg := EncoderConfig{Path: opts.Path, Width: opts.Width, Height: opts.Height, FPS: opts.FPS}
	if err := e.encoder.Begin(ctx, cfg); err != nil {
		return nil, fmt.Errorf("starting encoder: %w", err)
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, e.abort(err, i)
		}

		t := float64(i) / opts.FPS
		report := e.viewer.ApplyExportFrame(ctx, t)
		for id, mm := range report.Mismatches {
			e.log.Debug("export frame kept previous pose",
				zap.String("instance", id), zap.Int("frame", i), zap.Error(mm))
		}

		img, err := e.renderer.RenderFrame(ctx, e.viewer, opts.Width, opts.Height)
		if err != nil {
			return nil, e.abort(fmt.Errorf("rendering frame %d: %w", i, err), i)
		}
		if err := e.encoder.WriteFrame(ctx, img); err != nil {
			return nil, e.abort(fmt.Errorf("encoding frame %d: %w", i, err), i)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	res, err := e.encoder.Finalize(ctx)
	if err != nil {
		return nil, e.abort(fmt.Errorf("finalizing: %w", err), total)
	}
	e.log.Info("export finished",
		zap.String("path", res.Path),
		zap.Int64("bytes", res.Size),
		zap.Int("frames", res.Frames))
	return res, nil
}

func (e *Exporter) abort(cause error, frame int) error {
	e.log.Warn("export aborted", zap.Int("frame", frame), zap.Error(cause))
	if err := e.encoder.Abort(); err != nil {
		return errors.Join(cause, fmt.Errorf("aborting encoder: %w", err))
	}
	return cause
}

func checkFrame(img *image.RGBA, width, height int) error {
	if img == nil {
		return fmt.Errorf("%w: nil frame", ErrFrameSize)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, b.Dx(), b.Dy(), width, height)
	}
	return nil
}
