package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/davecgh/go-spew/spew"

	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/internal/watch"
	"github.com/Faultbox/mjtraj/pkg/formats"
)

var errUsage = errors.New("missing arguments, see trajtool help")

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: trajtool info <file>...", errUsage)
	}
	var errs []error
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := formats.Metadata(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Printf("File:    %s\n", path)
		fmt.Printf("Format:  %s\n", info.Kind)
		fmt.Printf("Frames:  %d\n", info.FrameCount)
		if info.NumJoints != nil {
			fmt.Printf("Joints:  %d\n", *info.NumJoints)
		} else {
			fmt.Printf("Joints:  none (1-D array)\n")
		}
		if info.FrameRate != nil {
			rate := *info.FrameRate
			fmt.Printf("Rate:    %g fps\n", rate)
			fmt.Printf("Length:  %.2f s\n", float64(info.FrameCount)/rate)
		} else {
			fmt.Printf("Rate:    unset (plays at %g fps)\n", formats.DefaultFrameRate)
		}
		fmt.Println()
	}
	return errors.Join(errs...)
}

// modelSummary is the part of a compiled model worth reading in a dump.
type modelSummary struct {
	NQ      int
	Bodies  []string
	Joints  []physics.JointType
	Geoms   []physics.GeomType
	Meshes  int
	Cameras []string
}

// trajectorySummary is a trajectory without the bulk of its frames.
type trajectorySummary struct {
	Info       *formats.Info
	FirstFrame []float64
	LastFrame  []float64
	Aux        []string
}

func cmdInspect(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: trajtool inspect <file>", errUsage)
	}
	path := args[0]

	dump := spew.NewDefaultConfig()
	dump.DisableCapacities = true
	dump.DisablePointerAddresses = true
	dump.MaxDepth = 3

	if !watch.IsTrajectoryFile(path) {
		m, err := playback.LoadModelFile(context.Background(), physics.NewTreeEngine(), path)
		if err != nil {
			return err
		}
		dump.Dump(summarizeModel(m))
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := formats.Metadata(data)
	if err != nil {
		return err
	}
	traj, err := formats.ParseTrajectory(data, formats.SourceLocal)
	if err != nil {
		return err
	}
	s := trajectorySummary{
		Info:       info,
		FirstFrame: traj.Frames[0],
		LastFrame:  traj.Frames[len(traj.Frames)-1],
	}
	for k := range traj.Aux {
		s.Aux = append(s.Aux, k)
	}
	sort.Strings(s.Aux)
	dump.Dump(s)
	return nil
}

func summarizeModel(m *physics.Model) modelSummary {
	s := modelSummary{
		NQ:     m.NQ,
		Joints: m.JntType,
		Geoms:  m.GeomType,
		Meshes: m.NMesh,
	}
	for i := 0; i < m.NBody; i++ {
		s.Bodies = append(s.Bodies, m.BodyName(i))
	}
	for i := 0; i < m.NCam; i++ {
		s.Cameras = append(s.Cameras, m.CameraName(i))
	}
	return s
}
