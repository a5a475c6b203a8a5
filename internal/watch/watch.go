// Package watch reports changes to the model and trajectory files the
// viewer has loaded, so it can reload them.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/logger"
)

// Kind classifies a watched file.
type Kind int

const (
	KindModel Kind = iota
	KindTrajectory
)

func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindTrajectory:
		return "trajectory"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Change is a settled modification of a watched file.
type Change struct {
	Path string
	Kind Kind
}

// DefaultDebounce is how long a path must stay quiet before it is reported.
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches files through their parent directories, so editors that
// replace files by rename are still seen. Events for one path are coalesced
// until it has been quiet for the debounce interval.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	files    map[string]Kind
	dirs     map[string]bool // directories whose new trajectories are reported
	watched  map[string]bool
	events   chan Change
	log      *zap.Logger
}

// New creates a watcher.
func New(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		files:    make(map[string]Kind),
		dirs:     make(map[string]bool),
		watched:  make(map[string]bool),
		events:   make(chan Change, 16),
		log:      logger.Named("watch"),
	}, nil
}

// Add watches a single file. Must be called before Run.
func (w *Watcher) Add(path string, kind Kind) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.watchDir(filepath.Dir(abs)); err != nil {
		return err
	}
	w.files[abs] = kind
	return nil
}

// AddDir reports every .npy or .npz file written in dir. Must be called
// before Run.
func (w *Watcher) AddDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := w.watchDir(abs); err != nil {
		return err
	}
	w.dirs[abs] = true
	return nil
}

func (w *Watcher) watchDir(dir string) error {
	if w.watched[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.watched[dir] = true
	w.log.Debug("watching directory", zap.String("dir", dir))
	return nil
}

// Events returns the channel of settled changes. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Change { return w.events }

// Close stops the underlying watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

// classify returns the kind of name, or false if it is not watched.
func (w *Watcher) classify(name string) (Kind, bool) {
	if k, ok := w.files[name]; ok {
		return k, true
	}
	if w.dirs[filepath.Dir(name)] && IsTrajectoryFile(name) {
		return KindTrajectory, true
	}
	return 0, false
}

// IsTrajectoryFile reports whether name has a trajectory extension.
func IsTrajectoryFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".npy", ".npz":
		return true
	}
	return false
}

// Run forwards debounced changes until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	pending := make(map[string]Kind)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			kind, ok := w.classify(filepath.Clean(ev.Name))
			if !ok {
				continue
			}
			pending[filepath.Clean(ev.Name)] = kind
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				ch := Change{Path: p, Kind: pending[p]}
				w.log.Info("file changed", zap.String("path", p), zap.Stringer("kind", ch.Kind))
				select {
				case w.events <- ch:
				case <-ctx.Done():
					return nil
				}
				delete(pending, p)
			}
		}
	}
}
