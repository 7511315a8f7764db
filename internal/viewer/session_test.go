package viewer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spheretrace/visualizer/internal/config"
	"spheretrace/visualizer/internal/simulation"
)

type envelope struct {
	Type     string              `json:"type"`
	Session  string              `json:"session"`
	Scene    SceneView           `json:"scene"`
	Viewport simulation.Viewport `json:"viewport"`
	Frame    uint64              `json:"frame"`
	Trace    struct {
		Source      simulation.Point    `json:"source"`
		Target      simulation.Point    `json:"target"`
		End         simulation.Point    `json:"end"`
		Samples     []simulation.Sample `json:"samples"`
		Termination string              `json:"termination"`
	} `json:"trace"`
	Reason string `json:"reason"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Scene.Mode = string(simulation.SceneStatic)
	cfg.Viewer.FPS = 200
	cfg.Viewer.MoveInterval = 0
	return cfg
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(envelope) bool) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg envelope
		require.NoError(t, json.Unmarshal(payload, &msg))
		if match(msg) {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestSessionAnnouncesSceneAndTracesPointer(t *testing.T) {
	monitor := simulation.NewFrameMonitor()
	server := NewServer(Options{Config: testConfig(t), Logger: zap.NewNop(), Monitor: monitor})
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer server.Shutdown()

	conn := dial(t, srv, "width=800&height=600")

	//1.- The first message describes the scene sized to the requested viewport.
	scene := readUntil(t, conn, func(m envelope) bool { return m.Type == MessageScene })
	assert.Equal(t, simulation.Viewport{Width: 800, Height: 600}, scene.Viewport)
	assert.Len(t, scene.Scene.Circles, 3)
	assert.Len(t, scene.Scene.Boxes, 1)
	assert.NotEmpty(t, scene.Session)

	//2.- The initial frame starts from the viewport center.
	first := readUntil(t, conn, func(m envelope) bool { return m.Type == MessageFrame })
	assert.Equal(t, simulation.Pt(400, 300), first.Trace.Source)

	//3.- Moving the pointer retargets the ray.
	send(t, conn, `{"type":"move","seq":1,"x":790,"y":300}`)
	moved := readUntil(t, conn, func(m envelope) bool {
		return m.Type == MessageFrame && m.Trace.Target == simulation.Pt(790, 300)
	})
	assert.NotEqual(t, "degenerate", moved.Trace.Termination)

	//4.- Releasing the pointer moves the source.
	send(t, conn, `{"type":"up","seq":2,"x":10,"y":20}`)
	readUntil(t, conn, func(m envelope) bool {
		return m.Type == MessageFrame && m.Trace.Source == simulation.Pt(10, 20)
	})

	assert.Eventually(t, func() bool { return monitor.Snapshot().Frames >= 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, server.ActiveSessions())
}

func TestSessionReportsInvalidEvents(t *testing.T) {
	server := NewServer(Options{Config: testConfig(t), Logger: zap.NewNop()})
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer server.Shutdown()

	conn := dial(t, srv, "")
	send(t, conn, `{"type":"zoom"}`)
	msg := readUntil(t, conn, func(m envelope) bool { return m.Type == MessageError })
	assert.Equal(t, "unknown_type", msg.Reason)

	//1.- The session survives the rejection.
	send(t, conn, `{"type":"move","seq":1,"x":5,"y":5}`)
	readUntil(t, conn, func(m envelope) bool {
		return m.Type == MessageFrame && m.Trace.Target == simulation.Pt(5, 5)
	})
}

func TestSessionAppliesThrottledFinalMove(t *testing.T) {
	cfg := testConfig(t)
	cfg.Viewer.MoveInterval = time.Hour
	server := NewServer(Options{Config: cfg, Logger: zap.NewNop()})
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer server.Shutdown()

	conn := dial(t, srv, "width=800&height=600")
	send(t, conn, `{"type":"move","seq":1,"x":100,"y":100}`)
	readUntil(t, conn, func(m envelope) bool {
		return m.Type == MessageFrame && m.Trace.Target == simulation.Pt(100, 100)
	})

	//1.- The last pointer position arrives inside the throttle window and still wins.
	send(t, conn, `{"type":"move","seq":2,"x":500,"y":500}`)
	readUntil(t, conn, func(m envelope) bool {
		return m.Type == MessageFrame && m.Trace.Target == simulation.Pt(500, 500)
	})
}

func TestSessionResizeAndRegenerate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scene.Mode = string(simulation.SceneRandom)
	seeds := make(chan uint64, 4)
	seeds <- 1
	seeds <- 2
	server := NewServer(Options{Config: cfg, Logger: zap.NewNop(), Seed: func() uint64 { return <-seeds }})
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer server.Shutdown()

	conn := dial(t, srv, "width=640&height=480")
	initial := readUntil(t, conn, func(m envelope) bool { return m.Type == MessageScene })
	assert.Equal(t, 640, initial.Viewport.Width)

	send(t, conn, `{"type":"resize","seq":1,"width":1024,"height":768}`)
	resized := readUntil(t, conn, func(m envelope) bool { return m.Type == MessageScene })
	assert.Equal(t, simulation.Viewport{Width: 1024, Height: 768}, resized.Viewport)
	assert.Equal(t, initial.Scene, resized.Scene)

	send(t, conn, `{"type":"regenerate","seq":2}`)
	regenerated := readUntil(t, conn, func(m envelope) bool { return m.Type == MessageScene })
	assert.NotEqual(t, initial.Scene, regenerated.Scene)
}

func TestShutdownEndsSessions(t *testing.T) {
	server := NewServer(Options{Config: testConfig(t), Logger: zap.NewNop()})
	srv := httptest.NewServer(server)
	defer srv.Close()

	conn := dial(t, srv, "")
	readUntil(t, conn, func(m envelope) bool { return m.Type == MessageScene })
	server.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return server.ActiveSessions() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNewSceneViewUsesEmptySlices(t *testing.T) {
	view := NewSceneView(simulation.NewScene(0))
	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"circles":[],"boxes":[],"maxDistance":500}`, string(data))
}
