// trajtool is a CLI utility for inspecting, synchronizing, exporting and
// serving physics trajectories.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/logger"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		err = cmdInfo(args)
	case "inspect":
		err = cmdInspect(cfg, args)
	case "sync":
		err = cmdSync(cfg, args)
	case "export", "x":
		err = cmdExport(cfg, args)
	case "gltf":
		err = cmdGLTF(cfg, args)
	case "serve":
		err = cmdServe(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`trajtool - physics trajectory utility

Usage:
  trajtool [global flags] <command> [options]

Global flags:
  -config <file>   Config file (default: ./config.yaml or user config dir)
  -model <file>    Physics model description
  -width, -height  Export size
  -fps <rate>      Export frame rate
  -debug           Debug logging

Commands:
  info <file>...                       Show frame count, rate and joints
  inspect <file>                       Dump a trajectory or model
  sync [-at frames] [-start offsets] <file>...
                                       Show local frames on the global clock
  export [-o out.mp4] [-png] [-fit] <file>...
                                       Render trajectories to video
  gltf [-o scene.glb] [-frame n] <file>...
                                       Write the posed scene as binary glTF
  serve [-addr host:port] [-root dir] [file...]
                                       Stream playback over HTTP/WebSocket

Examples:
  trajtool info runs/walk.npz
  trajtool sync -at 0,40,80 -start 0,10 runs/a.npz runs/b.npz
  trajtool -model humanoid.yaml export -o walk.mp4 runs/walk.npz
  trajtool serve -root runs`)
}
