// Package server streams viewer playback over HTTP and websockets.
//
// One Session goroutine owns the Viewer. HTTP handlers and websocket readers
// never touch it directly: they send closures through Session.Do, which the
// session runs between ticks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/playback"
)

// ErrSessionClosed is returned by Do once the session has stopped.
var ErrSessionClosed = errors.New("session closed")

// DefaultTickRate is the number of frame broadcasts per second.
const DefaultTickRate = 30

type command struct {
	fn    func(*playback.Viewer) (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

// Session runs the playback loop for one viewer.
type Session struct {
	viewer *playback.Viewer
	root   string
	tick   time.Duration
	cmds   chan command
	done   chan struct{}
	hub    *Hub
	log    *zap.Logger
}

// SessionOptions configures a session.
type SessionOptions struct {
	// Root is the directory trajectory paths are resolved against.
	Root string
	// TickRate is the broadcast rate in Hz.
	TickRate float64
}

// NewSession creates a session around v.
func NewSession(v *playback.Viewer, opts SessionOptions) *Session {
	rate := opts.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Session{
		viewer: v,
		root:   opts.Root,
		tick:   time.Duration(float64(time.Second) / rate),
		cmds:   make(chan command),
		done:   make(chan struct{}),
		hub:    NewHub(),
		log:    logger.Named("session"),
	}
}

// Hub returns the broadcast hub.
func (s *Session) Hub() *Hub { return s.hub }

// Run drives the viewer until ctx is cancelled. Commands are executed
// between ticks; each tick advances the clock and broadcasts a frame.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	go s.hub.Run(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	last := time.Now()

	s.log.Info("session started", zap.Duration("tick", s.tick), zap.String("root", s.root))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("session stopped")
			return nil
		case cmd := <-s.cmds:
			v, err := cmd.fn(s.viewer)
			cmd.reply <- result{value: v, err: err}
		case now := <-ticker.C:
			r := s.viewer.Tick(ctx, now.Sub(last))
			last = now
			s.broadcast(r)
		}
	}
}

func (s *Session) broadcast(r playback.Report) {
	if s.hub.Clients() == 0 {
		return
	}
	data, err := json.Marshal(frameMessage(s.viewer, r))
	if err != nil {
		s.log.Error("encoding frame", zap.Error(err))
		return
	}
	s.hub.Broadcast(data)
}

// Do runs fn on the session goroutine and returns its result.
func (s *Session) Do(ctx context.Context, fn func(*playback.Viewer) (any, error)) (any, error) {
	cmd := command{fn: fn, reply: make(chan result, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query runs fn on the session goroutine and returns a typed result.
func Query[T any](ctx context.Context, s *Session, fn func(*playback.Viewer) (T, error)) (T, error) {
	v, err := s.Do(ctx, func(pv *playback.Viewer) (any, error) { return fn(pv) })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
