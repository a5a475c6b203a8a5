package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/internal/workspace"
)

func cmdSync(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	at := fs.String("at", "", "Comma separated global frames (default: every 10th frame)")
	starts := fs.String("start", "", "Comma separated start frames, one per trajectory")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: trajtool sync [-at frames] [-start offsets] <file>...", errUsage)
	}

	cfg.Data.TrajectoryPaths = fs.Args()
	ws, err := workspace.Open(context.Background(), physics.NewTreeEngine(), cfg, ".")
	if err != nil {
		return err
	}
	v := ws.Viewer
	insts := v.Instances()
	if len(insts) == 0 {
		return fmt.Errorf("no trajectory could be loaded")
	}

	offsets, err := parseFloats(*starts)
	if err != nil {
		return fmt.Errorf("parsing -start: %w", err)
	}
	for i, off := range offsets {
		if i < len(insts) {
			if err := v.SetStartFrame(insts[i].ID, int(off)); err != nil {
				return err
			}
		}
	}

	frames, err := parseFloats(*at)
	if err != nil {
		return fmt.Errorf("parsing -at: %w", err)
	}
	if len(frames) == 0 {
		for f := 0.0; f <= v.LastFrame(); f += 10 {
			frames = append(frames, f)
		}
	}

	primary := v.PrimaryRate()
	fmt.Printf("Primary rate: %g fps, last global frame: %g\n\n", primary, v.LastFrame())

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "GLOBAL")
	for _, inst := range insts {
		fmt.Fprintf(tw, "\t%s (%g fps, start %d)", inst.Name, inst.FrameRate(), inst.StartFrame)
	}
	fmt.Fprintln(tw)
	for _, g := range frames {
		fmt.Fprintf(tw, "%g", g)
		for _, inst := range insts {
			fmt.Fprintf(tw, "\t%d", playback.LocalFrame(g, primary, inst.Timeline()))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
