package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/logger"
)

// Encoder state errors.
var (
	ErrEncoderNotStarted = errors.New("encoder not started")
	ErrEncoderStarted    = errors.New("encoder already started")
)

// FFmpegOptions configures the H.264 subprocess encoder.
type FFmpegOptions struct {
	Binary string // defaults to "ffmpeg"
	Preset string // defaults to "medium"
	CRF    int    // defaults to 18
}

// FFmpeg streams raw RGBA frames into an ffmpeg process producing an MP4.
// Output goes to a temporary file next to the target and is renamed into
// place on Finalize.
type FFmpeg struct {
	opts FFmpegOptions
	log  *zap.Logger

	cfg    EncoderConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	tmp    string
	cancel context.CancelFunc
	frames int
}

// NewFFmpeg creates an encoder.
func NewFFmpeg(opts FFmpegOptions) *FFmpeg {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Preset == "" {
		opts.Preset = "medium"
	}
	if opts.CRF <= 0 {
		opts.CRF = 18
	}
	return &FFmpeg{opts: opts, log: logger.Named("ffmpeg")}
}

// Args returns the ffmpeg command line for cfg writing to out.
func (f *FFmpeg) Args(cfg EncoderConfig, out string) []string {
	return []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.FormatFloat(cfg.FPS, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", f.opts.Preset,
		"-crf", strconv.Itoa(f.opts.CRF),
		"-movflags", "+faststart",
		// yuv420p needs even dimensions.
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-f", "mp4",
		out,
	}
}

// Begin starts the subprocess.
func (f *FFmpeg) Begin(ctx context.Context, cfg EncoderConfig) error {
	if f.cmd != nil {
		return ErrEncoderStarted
	}
	if cfg.Path == "" {
		return fmt.Errorf("%w: empty output path", ErrInvalidOptions)
	}
	bin, err := exec.LookPath(f.opts.Binary)
	if err != nil {
		return fmt.Errorf("locating %s: %w", f.opts.Binary, err)
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(cfg.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp.Close()

	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(cctx, bin, f.Args(cfg, tmp.Name())...)
	f.stderr.Reset()
	cmd.Stderr = &f.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		os.Remove(tmp.Name())
		return fmt.Errorf("opening ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		os.Remove(tmp.Name())
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	f.cfg = cfg
	f.cmd = cmd
	f.stdin = stdin
	f.tmp = tmp.Name()
	f.cancel = cancel
	f.frames = 0
	f.log.Debug("ffmpeg started", zap.Strings("args", cmd.Args))
	return nil
}

// WriteFrame writes one frame to ffmpeg's stdin. It blocks until the pipe
// accepts the whole frame.
func (f *FFmpeg) WriteFrame(ctx context.Context, img *image.RGBA) error {
	if f.cmd == nil {
		return ErrEncoderNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFrame(img, f.cfg.Width, f.cfg.Height); err != nil {
		return err
	}
	row := f.cfg.Width * 4
	for y := 0; y < f.cfg.Height; y++ {
		off := y * img.Stride
		if _, err := f.stdin.Write(img.Pix[off : off+row]); err != nil {
			return fmt.Errorf("writing to ffmpeg: %w: %s", err, f.stderrTail())
		}
	}
	f.frames++
	return nil
}

// Finalize closes stdin, waits for ffmpeg and moves the file into place.
func (f *FFmpeg) Finalize(ctx context.Context) (*Result, error) {
	if f.cmd == nil {
		return nil, ErrEncoderNotStarted
	}
	if err := f.stdin.Close(); err != nil {
		return nil, fmt.Errorf("closing ffmpeg stdin: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited: %w: %s", err, f.stderrTail())
		}
	case <-ctx.Done():
		f.cancel()
		<-done
		return nil, ctx.Err()
	}

	if err := os.Rename(f.tmp, f.cfg.Path); err != nil {
		return nil, fmt.Errorf("moving output into place: %w", err)
	}
	fi, err := os.Stat(f.cfg.Path)
	if err != nil {
		return nil, err
	}
	res := &Result{Path: f.cfg.Path, Size: fi.Size(), Frames: f.frames}
	f.reset()
	return res, nil
}

// Abort kills ffmpeg and removes the partial file.
func (f *FFmpeg) Abort() error {
	if f.cmd == nil {
		return nil
	}
	f.stdin.Close()
	f.cancel()
	f.cmd.Wait()
	err := os.Remove(f.tmp)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	f.log.Debug("ffmpeg aborted", zap.Int("frames", f.frames))
	f.reset()
	return err
}

func (f *FFmpeg) reset() {
	if f.cancel != nil {
		f.cancel()
	}
	f.cmd = nil
	f.stdin = nil
	f.tmp = ""
	f.cancel = nil
}

func (f *FFmpeg) stderrTail() string {
	b := f.stderr.Bytes()
	if len(b) > 512 {
		b = b[len(b)-512:]
	}
	return string(bytes.TrimSpace(b))
}
