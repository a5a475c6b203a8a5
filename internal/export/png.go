package export

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// PNGSequence writes each frame as a numbered PNG into a directory. Frames go
// to a temporary sibling directory that is renamed to the target on
// Finalize.
type PNGSequence struct {
	Prefix string

	cfg    EncoderConfig
	tmp    string
	frames int
	size   int64
}

// NewPNGSequence creates a PNG sequence encoder.
func NewPNGSequence() *PNGSequence {
	return &PNGSequence{Prefix: "frame"}
}

// Begin creates the staging directory.
func (p *PNGSequence) Begin(ctx context.Context, cfg EncoderConfig) error {
	if p.tmp != "" {
		return ErrEncoderStarted
	}
	if cfg.Path == "" {
		return fmt.Errorf("%w: empty output path", ErrInvalidOptions)
	}
	parent := filepath.Dir(filepath.Clean(cfg.Path))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(cfg.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	p.cfg = cfg
	p.tmp = tmp
	p.frames = 0
	p.size = 0
	return nil
}

// FrameName returns the file name of frame i.
func (p *PNGSequence) FrameName(i int) string {
	return fmt.Sprintf("%s_%06d.png", p.Prefix, i)
}

// WriteFrame encodes one PNG.
func (p *PNGSequence) WriteFrame(ctx context.Context, img *image.RGBA) error {
	if p.tmp == "" {
		return ErrEncoderNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFrame(img, p.cfg.Width, p.cfg.Height); err != nil {
		return err
	}
	n, err := writePNG(filepath.Join(p.tmp, p.FrameName(p.frames)), img)
	if err != nil {
		return err
	}
	p.frames++
	p.size += n
	return nil
}

// Finalize moves the staging directory into place, replacing any previous
// output at the same path.
func (p *PNGSequence) Finalize(ctx context.Context) (*Result, error) {
	if p.tmp == "" {
		return nil, ErrEncoderNotStarted
	}
	if err := os.RemoveAll(p.cfg.Path); err != nil {
		return nil, fmt.Errorf("removing previous output: %w", err)
	}
	if err := os.Rename(p.tmp, p.cfg.Path); err != nil {
		return nil, fmt.Errorf("moving output into place: %w", err)
	}
	res := &Result{Path: p.cfg.Path, Size: p.size, Frames: p.frames}
	p.tmp = ""
	return res, nil
}

// Abort removes the staging directory.
func (p *PNGSequence) Abort() error {
	if p.tmp == "" {
		return nil
	}
	err := os.RemoveAll(p.tmp)
	p.tmp = ""
	return err
}

// Screenshot saves img as "<prefix>_<timestamp>.png" in dir and returns the
// file name.
func Screenshot(dir, prefix string, img image.Image) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}
	name := fmt.Sprintf("%s_%s.png", prefix, time.Now().Format("2006-01-02_15-04-05"))
	if dir != "" {
		name = filepath.Join(dir, name)
	}
	if _, err := writePNG(name, img); err != nil {
		return "", err
	}
	return name, nil
}

func writePNG(path string, img image.Image) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return 0, fmt.Errorf("encoding PNG: %w", err)
	}
	fi, statErr := file.Stat()
	if err := file.Close(); err != nil {
		return 0, err
	}
	if statErr != nil {
		return 0, statErr
	}
	return fi.Size(), nil
}
