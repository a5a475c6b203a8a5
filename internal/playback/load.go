package playback

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/pkg/formats"
)

// LoadModelFile compiles the model at path with eng. An empty path or a
// missing file falls back to the built-in scene with a warning.
func LoadModelFile(ctx context.Context, eng physics.Engine, path string) (*physics.Model, error) {
	log := logger.Named("viewer")
	if path == "" {
		log.Warn("no model configured, using built-in scene")
		return physics.DefaultModel(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("model not found, using built-in scene", zap.String("path", path))
		return physics.DefaultModel(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	m, err := eng.LoadModel(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", path, err)
	}
	return m, nil
}

// TrajectoryFile is a trajectory read from disk.
type TrajectoryFile struct {
	ID         string
	Name       string
	Path       string
	Trajectory *formats.Trajectory
}

// LoadTrajectoryFile parses the .npy/.npz file at path. The id is derived
// from the path relative to root.
func LoadTrajectoryFile(root, path string) (*TrajectoryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trajectory: %w", err)
	}
	traj, err := formats.ParseTrajectory(data, formats.SourceLocal)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	name, id := TrajectoryKey(root, path)
	return &TrajectoryFile{
		ID:         id,
		Name:       name,
		Path:       path,
		Trajectory: traj,
	}, nil
}

// TrajectoryKey returns the display name and stable id of the trajectory
// file at path. The id hashes the path relative to root.
func TrajectoryKey(root, path string) (name, id string) {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)), formats.TrajectoryID(rel)
}

// AddTrajectoryFile loads path and adds it to v.
func (v *Viewer) AddTrajectoryFile(root, path string) (*Instance, error) {
	tf, err := LoadTrajectoryFile(root, path)
	if err != nil {
		return nil, err
	}
	inst, err := v.AddTrajectory(tf.ID, tf.Name, tf.Trajectory)
	if err != nil {
		return nil, err
	}
	inst.Path = tf.Path
	return inst, nil
}
