// Package config handles viewer and tool configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid config")

// Config holds all application settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Playback PlaybackConfig `yaml:"playback"`
	Export   ExportConfig   `yaml:"export"`
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DataConfig holds model and trajectory paths.
type DataConfig struct {
	ModelPath       string   `yaml:"model_path"`       // Physics model description
	TrajectoryPaths []string `yaml:"trajectory_paths"` // Files or directories preloaded at startup
	Watch           bool     `yaml:"watch"`            // Reload on file change
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	FPSLimit   int  `yaml:"fps_limit"`
	// Swizzle converts engine coordinates (Z up) to render coordinates (Y up).
	Swizzle bool `yaml:"swizzle"`
}

// PlaybackConfig holds the initial clock settings.
type PlaybackConfig struct {
	Speed            float64 `yaml:"speed"`
	Loop             bool    `yaml:"loop"`
	DefaultFrameRate float64 `yaml:"default_frame_rate"`
	GhostOpacity     float32 `yaml:"ghost_opacity"`
}

// ExportConfig holds video export settings.
type ExportConfig struct {
	FPS       float64 `yaml:"fps"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	FFmpeg    string  `yaml:"ffmpeg"`
	CRF       int     `yaml:"crf"`
	Preset    string  `yaml:"preset"`
	OutputDir string  `yaml:"output_dir"`
}

// ServerConfig holds the streaming server settings.
type ServerConfig struct {
	Addr     string  `yaml:"addr"`
	TickRate float64 `yaml:"tick_rate"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FPSLimit:   60,
			Swizzle:    true,
		},
		Playback: PlaybackConfig{
			Speed:            1,
			Loop:             true,
			DefaultFrameRate: 30,
			GhostOpacity:     0.35,
		},
		Export: ExportConfig{
			FPS:       24,
			Width:     1280,
			Height:    720,
			FFmpeg:    "ffmpeg",
			CRF:       18,
			Preset:    "medium",
			OutputDir: ".",
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:8765",
			TickRate: 30,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks the settings that would otherwise fail deep inside the
// renderer or encoder.
func (c *Config) Validate() error {
	switch {
	case c.Graphics.Width <= 0 || c.Graphics.Height <= 0:
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Graphics.Width, c.Graphics.Height)
	case c.Export.Width <= 0 || c.Export.Height <= 0:
		return fmt.Errorf("%w: export size %dx%d", ErrInvalid, c.Export.Width, c.Export.Height)
	case c.Export.FPS <= 0:
		return fmt.Errorf("%w: export fps %v", ErrInvalid, c.Export.FPS)
	case c.Playback.Speed <= 0:
		return fmt.Errorf("%w: playback speed %v", ErrInvalid, c.Playback.Speed)
	case c.Playback.GhostOpacity < 0 || c.Playback.GhostOpacity > 1:
		return fmt.Errorf("%w: ghost opacity %v", ErrInvalid, c.Playback.GhostOpacity)
	case c.Server.TickRate <= 0:
		return fmt.Errorf("%w: tick rate %v", ErrInvalid, c.Server.TickRate)
	}
	return nil
}
