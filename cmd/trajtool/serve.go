package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/internal/server"
	"github.com/Faultbox/mjtraj/internal/watch"
	"github.com/Faultbox/mjtraj/internal/workspace"
)

func cmdServe(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "Listen address")
	root := fs.String("root", ".", "Directory trajectory paths are resolved against")
	tick := fs.Float64("tick", cfg.Server.TickRate, "Broadcast rate in Hz")
	fs.Parse(args)

	cfg.Data.TrajectoryPaths = append(cfg.Data.TrajectoryPaths, fs.Args()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := workspace.Open(ctx, physics.NewTreeEngine(), cfg, *root)
	if err != nil {
		return err
	}
	sess := server.NewSession(ws.Viewer, server.SessionOptions{Root: ws.Root, TickRate: *tick})
	srv := server.New(sess)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, *addr) })

	if cfg.Data.Watch {
		w, err := watch.New(watch.DefaultDebounce)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := ws.Watch(w); err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
		g.Go(func() error { return forwardChanges(gctx, sess, ws, w.Events()) })
	}

	return g.Wait()
}

// forwardChanges applies file changes on the session goroutine, which owns
// the viewer.
func forwardChanges(ctx context.Context, sess *server.Session, ws *workspace.Workspace, changes <-chan watch.Change) error {
	log := logger.Named("serve")
	for c := range changes {
		_, err := sess.Do(ctx, func(*playback.Viewer) (any, error) {
			return nil, ws.Reload(ctx, c)
		})
		switch {
		case err == nil:
		case errors.Is(err, server.ErrSessionClosed), ctx.Err() != nil:
			return nil
		default:
			log.Warn("reload failed", zap.String("path", c.Path), zap.Stringer("kind", c.Kind), zap.Error(err))
		}
	}
	return nil
}
