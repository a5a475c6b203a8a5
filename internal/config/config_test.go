package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test graphics defaults
	if cfg.Graphics.Width != 1280 {
		t.Errorf("expected width 1280, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 720 {
		t.Errorf("expected height 720, got %d", cfg.Graphics.Height)
	}
	if cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be false by default")
	}
	if !cfg.Graphics.VSync {
		t.Error("expected vsync to be true by default")
	}
	if !cfg.Graphics.Swizzle {
		t.Error("expected swizzle to be true by default")
	}

	// Test playback defaults
	if cfg.Playback.Speed != 1 {
		t.Errorf("expected speed 1, got %f", cfg.Playback.Speed)
	}
	if cfg.Playback.DefaultFrameRate != 30 {
		t.Errorf("expected default frame rate 30, got %f", cfg.Playback.DefaultFrameRate)
	}
	if cfg.Playback.GhostOpacity != 0.35 {
		t.Errorf("expected ghost opacity 0.35, got %f", cfg.Playback.GhostOpacity)
	}

	// Test export defaults
	if cfg.Export.FPS != 24 {
		t.Errorf("expected export fps 24, got %f", cfg.Export.FPS)
	}
	if cfg.Export.FFmpeg != "ffmpeg" {
		t.Errorf("expected ffmpeg binary 'ffmpeg', got %s", cfg.Export.FFmpeg)
	}

	// Test server defaults
	if cfg.Server.TickRate != 30 {
		t.Errorf("expected tick rate 30, got %f", cfg.Server.TickRate)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  fullscreen: true
  vsync: false
  fps_limit: 144

playback:
  speed: 0.5
  loop: false
  ghost_opacity: 0.2

export:
  fps: 60
  crf: 23
  preset: "slow"
  output_dir: "/tmp/videos"

server:
  addr: ":9000"
  tick_rate: 20

data:
  model_path: "models/humanoid.yaml"
  trajectory_paths:
    - "runs/a.npz"
    - "runs/b.npy"
  watch: true

logging:
  level: "debug"
  log_file: "/tmp/mjtraj.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Verify graphics
	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 1080 {
		t.Errorf("expected height 1080, got %d", cfg.Graphics.Height)
	}
	if !cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be true")
	}
	if cfg.Graphics.VSync {
		t.Error("expected vsync to be false")
	}
	if cfg.Graphics.FPSLimit != 144 {
		t.Errorf("expected fps limit 144, got %d", cfg.Graphics.FPSLimit)
	}

	// Verify playback
	if cfg.Playback.Speed != 0.5 {
		t.Errorf("expected speed 0.5, got %f", cfg.Playback.Speed)
	}
	if cfg.Playback.Loop {
		t.Error("expected loop to be false")
	}
	if cfg.Playback.GhostOpacity != 0.2 {
		t.Errorf("expected ghost opacity 0.2, got %f", cfg.Playback.GhostOpacity)
	}
	// Unset keys keep their defaults
	if cfg.Playback.DefaultFrameRate != 30 {
		t.Errorf("expected default frame rate to stay 30, got %f", cfg.Playback.DefaultFrameRate)
	}

	// Verify export
	if cfg.Export.FPS != 60 {
		t.Errorf("expected export fps 60, got %f", cfg.Export.FPS)
	}
	if cfg.Export.CRF != 23 {
		t.Errorf("expected crf 23, got %d", cfg.Export.CRF)
	}
	if cfg.Export.Preset != "slow" {
		t.Errorf("expected preset 'slow', got %s", cfg.Export.Preset)
	}
	if cfg.Export.OutputDir != "/tmp/videos" {
		t.Errorf("expected output dir /tmp/videos, got %s", cfg.Export.OutputDir)
	}

	// Verify server
	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected addr :9000, got %s", cfg.Server.Addr)
	}
	if cfg.Server.TickRate != 20 {
		t.Errorf("expected tick rate 20, got %f", cfg.Server.TickRate)
	}

	// Verify data
	if cfg.Data.ModelPath != "models/humanoid.yaml" {
		t.Errorf("expected model path models/humanoid.yaml, got %s", cfg.Data.ModelPath)
	}
	if len(cfg.Data.TrajectoryPaths) != 2 {
		t.Errorf("expected 2 trajectory paths, got %d", len(cfg.Data.TrajectoryPaths))
	}
	if !cfg.Data.Watch {
		t.Error("expected watch to be true")
	}

	// Verify logging
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "/tmp/mjtraj.log" {
		t.Errorf("expected log file /tmp/mjtraj.log, got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	// Write invalid YAML
	invalidYAML := `
graphics:
  width: [this is not valid
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	err := loadFromFile(cfg, configPath)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window width", func(c *Config) { c.Graphics.Width = 0 }},
		{"negative export height", func(c *Config) { c.Export.Height = -1 }},
		{"zero export fps", func(c *Config) { c.Export.FPS = 0 }},
		{"zero speed", func(c *Config) { c.Playback.Speed = 0 }},
		{"opacity above one", func(c *Config) { c.Playback.GhostOpacity = 1.5 }},
		{"zero tick rate", func(c *Config) { c.Server.TickRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Just verify it returns a non-empty path
	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}

	// Verify path is absolute
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	// Save current directory
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	// Create temp directory and change to it
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("MJTRAJ_CONFIG", "")

	// No config file exists - should return empty
	path := findConfigFile()
	if path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	// Create config.yaml in current directory
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("graphics:\n  width: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	// Should find it now
	path = findConfigFile()
	if path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestFindConfigFileFromEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  addr: \":1\"\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	t.Setenv("MJTRAJ_CONFIG", configPath)

	if path := findConfigFile(); path != configPath {
		t.Errorf("expected %s from MJTRAJ_CONFIG, got %s", configPath, path)
	}
}

func TestLoadFromFileUnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("graphics:\n  widht: 800\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error for misspelled key, got nil")
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, nil, 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Errorf("expected empty file to keep defaults, got %v", err)
	}
	if cfg.Graphics.Width != 1280 {
		t.Errorf("expected default width 1280, got %d", cfg.Graphics.Width)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Data.ModelPath = "model.yaml"
	cfg.Export.Preset = "veryfast"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	if !strings.HasPrefix(string(data), fileHeader) {
		t.Error("expected saved config to start with the header comment")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temporary file to be renamed away")
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if loaded.Data.ModelPath != "model.yaml" {
		t.Errorf("expected model path model.yaml, got %s", loaded.Data.ModelPath)
	}
	if loaded.Export.Preset != "veryfast" {
		t.Errorf("expected preset veryfast, got %s", loaded.Export.Preset)
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name: "debug flag",
			setup: func() {
				*flagDebug = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() {
				*flagDebug = false
			},
		},
		{
			name: "windowed flag",
			setup: func() {
				*flagWindowed = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be false with windowed flag")
				}
			},
			teardown: func() {
				*flagWindowed = false
			},
		},
		{
			name: "fullscreen flag",
			setup: func() {
				*flagFullscreen = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be true with fullscreen flag")
				}
			},
			teardown: func() {
				*flagFullscreen = false
			},
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Width != 2560 {
					t.Errorf("expected width 2560, got %d", cfg.Graphics.Width)
				}
				if cfg.Graphics.Height != 1440 {
					t.Errorf("expected height 1440, got %d", cfg.Graphics.Height)
				}
				if cfg.Export.Width != 2560 || cfg.Export.Height != 1440 {
					t.Errorf("expected export size 2560x1440, got %dx%d", cfg.Export.Width, cfg.Export.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
		{
			name: "model flag",
			setup: func() {
				*flagModel = "robot.yaml"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Data.ModelPath != "robot.yaml" {
					t.Errorf("expected model path robot.yaml, got %s", cfg.Data.ModelPath)
				}
			},
			teardown: func() {
				*flagModel = ""
			},
		},
		{
			name: "fps flag",
			setup: func() {
				*flagFPS = 50
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Export.FPS != 50 {
					t.Errorf("expected export fps 50, got %f", cfg.Export.FPS)
				}
			},
			teardown: func() {
				*flagFPS = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			tt.setup()
			defer tt.teardown()

			// Apply flags to default config
			cfg := Default()
			applyFlags(cfg)

			// Verify
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1600
  height: 900
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set flag to override config file
	*flagConfig = configPath
	*flagWidth = 1920
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
	}()

	// Load config
	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Width should be from flag (1920), not file (1600)
	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Graphics.Width)
	}

	// Height should be from file (900) since no flag override
	if cfg.Graphics.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Graphics.Height)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("export:\n  fps: -1\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	if _, err := Load(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}
