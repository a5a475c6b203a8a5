package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/engine/camera"
	"github.com/Faultbox/mjtraj/internal/engine/gltfexport"
	"github.com/Faultbox/mjtraj/internal/engine/renderer"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/engine/window"
	"github.com/Faultbox/mjtraj/internal/export"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/internal/workspace"
)

func cmdExport(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "Output path (default: <output_dir>/trajectory.mp4)")
	pngs := fs.Bool("png", false, "Write a directory of PNG frames instead of MP4")
	fit := fs.Bool("fit", false, "Frame the whole scene instead of the default camera")
	fs.Parse(args)

	cfg.Data.TrajectoryPaths = append(cfg.Data.TrajectoryPaths, fs.Args()...)
	ec := cfg.Export
	if *out == "" {
		name := "trajectory.mp4"
		if *pngs {
			name = "trajectory_frames"
		}
		*out = filepath.Join(ec.OutputDir, name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := workspace.Open(ctx, physics.NewTreeEngine(), cfg, ".")
	if err != nil {
		return err
	}
	v := ws.Viewer

	// A hidden window provides the GL context for offscreen rendering.
	win, err := window.New(window.Config{
		Title:  "mjtraj export",
		Width:  ec.Width,
		Height: ec.Height,
		Hidden: true,
	})
	if err != nil {
		return fmt.Errorf("creating GL context: %w", err)
	}
	defer win.Close()

	r, err := renderer.New(renderer.DefaultConfig(ec.Width, ec.Height))
	if err != nil {
		return err
	}
	defer r.Close()

	cam := camera.NewOrbitCamera(v.Transform())
	if *fit {
		v.ApplyExportFrame(ctx, 0)
		if b, ok := scene.WorldBounds(v.Scenes()); ok {
			cam.FitToBounds(b)
		}
	}
	r.View = cam

	var enc export.Encoder
	if *pngs {
		enc = export.NewPNGSequence()
	} else {
		enc = export.NewFFmpeg(export.FFmpegOptions{Binary: ec.FFmpeg, Preset: ec.Preset, CRF: ec.CRF})
	}
	exp := export.New(v, r, enc)
	opts := export.Options{Path: *out, FPS: ec.FPS, Width: ec.Width, Height: ec.Height}
	if err := exp.Check(opts); err != nil {
		return err
	}

	bar := progressbar.Default(int64(export.TotalFrames(v.Duration(), ec.FPS)), "exporting")
	res, err := exp.Export(ctx, opts, func(done, total int) {
		_ = bar.Set(done)
	})
	_ = bar.Close()
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %s (%d frames, %.2f MB)\n", res.Path, res.Frames, float64(res.Size)/(1024*1024))
	return nil
}

func cmdGLTF(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("gltf", flag.ExitOnError)
	out := fs.String("o", "scene.glb", "Output .glb path")
	frame := fs.Float64("frame", 0, "Global frame to pose")
	fs.Parse(args)

	cfg.Data.TrajectoryPaths = append(cfg.Data.TrajectoryPaths, fs.Args()...)
	ctx := context.Background()
	ws, err := workspace.Open(ctx, physics.NewTreeEngine(), cfg, ".")
	if err != nil {
		return err
	}
	v := ws.Viewer

	v.Clock().Seek(*frame)
	report := v.Update(playback.FrameContext{
		Ctx:         ctx,
		GlobalFrame: v.Clock().Frame(),
		PrimaryRate: v.PrimaryRate(),
	})
	for id, dm := range report.Mismatches {
		fmt.Fprintf(os.Stderr, "warning: %s not posed: %v\n", id, dm)
	}

	if err := gltfexport.WriteFile(*out, v.Scenes(), v.Instancing()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d scenes at frame %g)\n", *out, len(v.Scenes()), *frame)
	return nil
}
