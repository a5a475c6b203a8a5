package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/pkg/formats"
)

// writeNPY writes a float64 array of shape (rows, cols) whose first column
// counts frames.
func writeNPY(t *testing.T, path string, rows, cols int) {
	t.Helper()
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }", rows, cols)
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := 0.0
			if c == 0 {
				v = float64(r) * 0.01
			}
			binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
		}
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

type fixture struct {
	root string
	ts   *httptest.Server
	sess *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := playback.NewViewer(context.Background(), physics.NewTreeEngine(), physics.DefaultModel(), playback.DefaultOptions())
	require.NoError(t, err)
	tr := &formats.Trajectory{FrameRate: 30}
	for i := 0; i < 30; i++ {
		tr.Frames = append(tr.Frames, []float64{float64(i) * 0.01, 0})
	}
	_, err = v.AddTrajectory("base", "base", tr)
	require.NoError(t, err)

	root := t.TempDir()
	sess := NewSession(v, SessionOptions{Root: root, TickRate: 100})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	ts := httptest.NewServer(New(sess).Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &fixture{root: root, ts: ts, sess: sess}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestState(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[playback.Snapshot](t, resp)
	require.Len(t, snap.Instances, 1)
	assert.Equal(t, "base", snap.Instances[0].ID)
	assert.Equal(t, 30.0, snap.PrimaryRate)
}

func TestAddInstance(t *testing.T) {
	f := newFixture(t)
	writeNPY(t, filepath.Join(f.root, "walk.npy"), 12, 2)

	resp := f.do(t, http.MethodPost, "/api/instances", AddRequest{Path: "walk.npy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	info := decode[playback.InstanceInfo](t, resp)
	assert.Equal(t, formats.TrajectoryID("walk.npy"), info.ID)
	assert.Equal(t, "walk", info.Name)
	assert.Equal(t, 12, info.FrameCount)

	// Adding the same file again collides on the id.
	resp = f.do(t, http.MethodPost, "/api/instances", AddRequest{Path: "walk.npy"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/instances", nil)
	assert.Len(t, decode[[]playback.InstanceInfo](t, resp), 2)
}

func TestAddInstanceRejectsBadPaths(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/instances", AddRequest{Path: "../outside.npy"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/instances", AddRequest{Path: "missing.npy"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, os.WriteFile(filepath.Join(f.root, "junk.npy"), []byte("not numpy"), 0o644))
	resp = f.do(t, http.MethodPost, "/api/instances", AddRequest{Path: "junk.npy"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Error, "unsupported")
}

func TestPatchAndDeleteInstance(t *testing.T) {
	f := newFixture(t)

	ghost, start := true, 5
	resp := f.do(t, http.MethodPatch, "/api/instances/base", InstancePatch{Ghost: &ghost, StartFrame: &start})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[playback.InstanceInfo](t, resp)
	assert.True(t, info.Ghost)
	assert.Equal(t, 5, info.StartFrame)

	resp = f.do(t, http.MethodPatch, "/api/instances/nope", InstancePatch{Ghost: &ghost})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/instances/base", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/instances/base", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlaybackControl(t *testing.T) {
	f := newFixture(t)

	frame := 7.0
	resp := f.do(t, http.MethodPost, "/api/playback", ControlMessage{Action: "seek", Frame: &frame})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7.0, decode[playback.Snapshot](t, resp).Frame)

	resp = f.do(t, http.MethodPost, "/api/playback", ControlMessage{Action: "seek"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/playback", ControlMessage{Action: "rewind"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSceneSnapshot(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/scene", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "model/gltf-binary", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "glTF", string(body[:4]))
}

func TestWebsocketStreamsFrames(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ControlMessage{Action: "play"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg FrameMessage
	for msg.Type == "" || !msg.Playing {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.Equal(t, "frame", msg.Type)
	require.Len(t, msg.Instances, 1)
	assert.Equal(t, "base", msg.Instances[0].ID)
	assert.NotEmpty(t, msg.Instances[0].Bodies)
}

func TestDoAfterStop(t *testing.T) {
	v, err := playback.NewViewer(context.Background(), physics.NewTreeEngine(), physics.DefaultModel(), playback.DefaultOptions())
	require.NoError(t, err)
	sess := NewSession(v, SessionOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sess.Run(ctx))

	_, err = sess.Do(context.Background(), func(*playback.Viewer) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestResolve(t *testing.T) {
	s := &Server{session: &Session{root: "/data"}}

	p, err := s.resolve("runs/a.npz")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "runs", "a.npz"), p)

	_, err = s.resolve("../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = s.resolve("")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
