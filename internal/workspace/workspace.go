// Package workspace opens a model with its configured trajectories and keeps
// them in step with the files on disk.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/internal/watch"
)

// Workspace owns a viewer together with the paths it was loaded from.
// Like the viewer, it is not safe for concurrent use.
type Workspace struct {
	Viewer *playback.Viewer
	Engine physics.Engine
	// Root is the absolute directory trajectory ids are derived against.
	Root      string
	ModelPath string
	// Paths are the configured trajectory files and directories.
	Paths []string

	defaultRate float64
	log         *zap.Logger
}

// Options derives viewer options from cfg.
func Options(cfg *config.Config) playback.Options {
	opts := playback.DefaultOptions()
	if !cfg.Graphics.Swizzle {
		opts.Transform = coords.New(coords.Passthrough)
	}
	opts.Ghost.Opacity = cfg.Playback.GhostOpacity
	return opts
}

// Open loads the configured model (falling back to the built-in scene),
// builds the viewer and adds every configured trajectory. A trajectory that
// fails to load is logged and skipped.
func Open(ctx context.Context, eng physics.Engine, cfg *config.Config, root string) (*Workspace, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	m, err := playback.LoadModelFile(ctx, eng, cfg.Data.ModelPath)
	if err != nil {
		return nil, err
	}
	v, err := playback.NewViewer(ctx, eng, m, Options(cfg))
	if err != nil {
		return nil, fmt.Errorf("building viewer: %w", err)
	}
	v.Clock().SetSpeed(cfg.Playback.Speed)
	v.Clock().SetLoop(cfg.Playback.Loop)

	ws := &Workspace{
		Viewer:      v,
		Engine:      eng,
		Root:        absRoot,
		ModelPath:   cfg.Data.ModelPath,
		Paths:       cfg.Data.TrajectoryPaths,
		defaultRate: cfg.Playback.DefaultFrameRate,
		log:         logger.Named("workspace"),
	}
	for _, p := range ws.Paths {
		if _, err := ws.AddPath(p); err != nil {
			ws.log.Warn("skipping trajectory path", zap.String("path", p), zap.Error(err))
		}
	}
	return ws, nil
}

// AddPath adds the trajectory at path, or every trajectory file directly
// inside it when path is a directory. Directory entries load in name order.
func (ws *Workspace) AddPath(path string) ([]*playback.Instance, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		inst, err := ws.Add(path)
		if err != nil {
			return nil, err
		}
		return []*playback.Instance{inst}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && watch.IsTrajectoryFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*playback.Instance
	var errs []error
	for _, name := range names {
		inst, err := ws.Add(filepath.Join(path, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, inst)
	}
	return out, errors.Join(errs...)
}

// Add loads one trajectory file. Raw .npy arrays carry no rate, so they play
// at the configured default rate.
func (ws *Workspace) Add(path string) (*playback.Instance, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	inst, err := ws.Viewer.AddTrajectoryFile(ws.Root, abs)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(abs), ".npy") && ws.defaultRate > 0 {
		inst.FrameRateOverride = ws.defaultRate
	}
	return inst, nil
}

// Watch registers the model file and the trajectory paths with w.
func (ws *Workspace) Watch(w *watch.Watcher) error {
	if ws.ModelPath != "" {
		if err := w.Add(ws.ModelPath, watch.KindModel); err != nil {
			return err
		}
	}
	for _, p := range ws.Paths {
		fi, err := os.Stat(p)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			err = w.AddDir(p)
		} else {
			err = w.Add(p, watch.KindTrajectory)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// settings is the per-instance state a reload carries over.
type settings struct {
	ghost   bool
	visible bool
	start   int
	rate    float64
}

func capture(inst *playback.Instance) settings {
	return settings{
		ghost:   inst.Ghost(),
		visible: inst.Visible(),
		start:   inst.StartFrame,
		rate:    inst.FrameRateOverride,
	}
}

func (ws *Workspace) restore(id string, s settings) error {
	v := ws.Viewer
	return errors.Join(
		v.SetGhost(id, s.ghost),
		v.SetVisible(id, s.visible),
		v.SetStartFrame(id, s.start),
		v.SetFrameRate(id, s.rate),
	)
}

// Reload applies one file change.
func (ws *Workspace) Reload(ctx context.Context, c watch.Change) error {
	switch c.Kind {
	case watch.KindModel:
		return ws.ReloadModel(ctx)
	case watch.KindTrajectory:
		return ws.ReloadTrajectory(c.Path)
	}
	return nil
}

// ReloadModel recompiles the model file and rebuilds every instance on the
// new hierarchy. Trajectories are kept in memory and re-added in load order
// with their settings. A model that fails to load leaves the viewer as is.
func (ws *Workspace) ReloadModel(ctx context.Context) error {
	m, err := playback.LoadModelFile(ctx, ws.Engine, ws.ModelPath)
	if err != nil {
		return err
	}

	type kept struct {
		inst *playback.Instance
		s    settings
	}
	v := ws.Viewer
	old := make([]kept, 0, len(v.Instances()))
	for _, inst := range v.Instances() {
		old = append(old, kept{inst: inst, s: capture(inst)})
	}

	if err := v.ReplaceModel(ctx, m); err != nil {
		return fmt.Errorf("replacing model: %w", err)
	}
	var errs []error
	for _, k := range old {
		inst, err := v.AddTrajectory(k.inst.ID, k.inst.Name, k.inst.Trajectory)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		inst.Path = k.inst.Path
		errs = append(errs, ws.restore(inst.ID, k.s))
	}
	ws.log.Info("model reloaded", zap.String("path", ws.ModelPath), zap.Int("instances", len(old)))
	return errors.Join(errs...)
}

// ReloadTrajectory re-reads the file at path. A loaded instance is replaced
// in place with its settings kept; a deleted file removes it; an unknown
// file is added.
func (ws *Workspace) ReloadTrajectory(path string) error {
	v := ws.Viewer
	tf, err := playback.LoadTrajectoryFile(ws.Root, path)
	if errors.Is(err, fs.ErrNotExist) {
		id := ws.idFor(path)
		if _, lookupErr := v.Instance(id); lookupErr != nil {
			return nil
		}
		return v.RemoveTrajectory(id)
	}
	if err != nil {
		return err
	}

	existing, lookupErr := v.Instance(tf.ID)
	if lookupErr != nil {
		_, err := ws.Add(path)
		return err
	}

	s := capture(existing)
	name := existing.Name
	if err := v.RemoveTrajectory(tf.ID); err != nil {
		return err
	}
	inst, err := v.AddTrajectory(tf.ID, name, tf.Trajectory)
	if err != nil {
		return err
	}
	inst.Path = tf.Path
	ws.log.Info("trajectory reloaded", zap.String("instance", tf.ID), zap.Int("frames", tf.Trajectory.FrameCount()))
	return ws.restore(inst.ID, s)
}

func (ws *Workspace) idFor(path string) string {
	_, id := playback.TrajectoryKey(ws.Root, path)
	return id
}
