package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/engine/gltfexport"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/pkg/formats"
)

// ErrOutsideRoot is returned for trajectory paths escaping the data root.
var ErrOutsideRoot = errors.New("path outside data root")

// Server exposes a session over HTTP.
type Server struct {
	session  *Session
	router   *mux.Router
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// New creates a server for sess.
func New(sess *Session) *Server {
	s := &Server{
		session:  sess,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		log:      logger.Named("server"),
	}
	// Allow any origin; the API is meant for local tooling.
	s.upgrader.CheckOrigin = func(*http.Request) bool { return true }

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/scene", s.handleScene).Methods(http.MethodGet)
	api.HandleFunc("/playback", s.handlePlayback).Methods(http.MethodPost)
	api.HandleFunc("/instances", s.handleListInstances).Methods(http.MethodGet)
	api.HandleFunc("/instances", s.handleAddInstance).Methods(http.MethodPost)
	api.HandleFunc("/instances/{id}", s.handlePatchInstance).Methods(http.MethodPatch)
	api.HandleFunc("/instances/{id}", s.handleDeleteInstance).Methods(http.MethodDelete)
	s.router.HandleFunc("/ws", s.handleWS)
	return s
}

// Handler returns the router wrapped with recovery, CORS and access logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(s.log)))(h)
	return handlers.LoggingHandler(zap.NewStdLog(s.log).Writer(), h)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := Query(r.Context(), s.session, func(v *playback.Viewer) (playback.Snapshot, error) {
		return v.Snapshot(), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	infos, err := Query(r.Context(), s.session, func(v *playback.Viewer) ([]playback.InstanceInfo, error) {
		return v.Snapshot().Instances, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleAddInstance(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	path, err := s.resolve(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	// Parse outside the session goroutine; only the insert runs there.
	tf, err := playback.LoadTrajectoryFile(s.session.root, path)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name != "" {
		tf.Name = req.Name
	}
	info, err := Query(r.Context(), s.session, func(v *playback.Viewer) (playback.InstanceInfo, error) {
		inst, err := v.AddTrajectory(tf.ID, tf.Name, tf.Trajectory)
		if err != nil {
			return playback.InstanceInfo{}, err
		}
		inst.Path = tf.Path
		return instanceInfo(v, inst.ID), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handlePatchInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch InstancePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	info, err := Query(r.Context(), s.session, func(v *playback.Viewer) (playback.InstanceInfo, error) {
		if err := applyPatch(v, id, patch); err != nil {
			return playback.InstanceInfo{}, err
		}
		return instanceInfo(v, id), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	_, err := s.session.Do(r.Context(), func(v *playback.Viewer) (any, error) {
		return nil, v.RemoveTrajectory(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var msg ControlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	snap, err := Query(r.Context(), s.session, func(v *playback.Viewer) (playback.Snapshot, error) {
		if err := applyControl(v, msg); err != nil {
			return playback.Snapshot{}, err
		}
		return v.Snapshot(), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	// Encoding reads the graphs, so it runs on the session goroutine.
	data, err := Query(r.Context(), s.session, func(v *playback.Viewer) ([]byte, error) {
		var buf bytes.Buffer
		if err := gltfexport.Write(&buf, v.Scenes(), v.Instancing()); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "model/gltf-binary")
	w.Header().Set("Content-Disposition", `attachment; filename="scene.glb"`)
	w.Write(data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	hub := s.session.Hub()
	if !hub.add(r.Context(), c) {
		conn.Close()
		return
	}
	go c.writePump(s.log)
	s.readPump(r.Context(), c)
	hub.remove(context.Background(), c)
}

// readPump applies control messages from c until the connection closes.
func (s *Server) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg ControlMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("ws read error", zap.Error(err))
			}
			return
		}
		if _, err := s.session.Do(ctx, func(v *playback.Viewer) (any, error) {
			return nil, applyControl(v, msg)
		}); err != nil {
			s.log.Debug("ws control rejected", zap.String("action", msg.Action), zap.Error(err))
		}
	}
}

// resolve maps a client path to a file below the data root.
func (s *Server) resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	root := s.session.root
	if root == "" {
		root = "."
	}
	full := filepath.Join(root, filepath.FromSlash(p))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return full, nil
}

func instanceInfo(v *playback.Viewer, id string) playback.InstanceInfo {
	for _, info := range v.Snapshot().Instances {
		if info.ID == id {
			return info
		}
	}
	return playback.InstanceInfo{}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, playback.ErrUnknownInstance), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, ErrOutsideRoot),
		errors.Is(err, ErrInvalidControl),
		errors.Is(err, formats.ErrUnsupportedFormat),
		errors.Is(err, formats.ErrMissingQpos),
		errors.Is(err, formats.ErrEmptyTrajectory),
		errors.Is(err, playback.ErrEmptyTrajectory):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
