package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/pianopractice/internal/config"
	"github.com/hammamikhairi/pianopractice/internal/detect"
	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/exercise"
	"github.com/hammamikhairi/pianopractice/internal/logger"
	"github.com/hammamikhairi/pianopractice/internal/mono"
	"github.com/hammamikhairi/pianopractice/internal/onset"
	"github.com/hammamikhairi/pianopractice/internal/ring"
	"github.com/hammamikhairi/pianopractice/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	const sr = 44100

	deps := session.Deps{
		Log:         log,
		Registry:    session.NewMemoryRegistry(log),
		RingConfig:  ring.Config{WindowSamples: 4096, HopRatio: 0.5, SampleRate: sr},
		OnsetConfig: onset.Config{SampleRate: sr},
	}
	exercises := exercise.NewMemorySource(log)
	arb := detect.New(mono.New(sr, mono.PresetV3), nil, nil, detect.MatchConfig{})

	srv := NewServer(log, deps, config.Default(), exercises, func() *detect.Arbiter { return arb })
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSONWithTimeout(t *testing.T, conn *websocket.Conn, d time.Duration) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return msg
}

func TestSessionStartedOnConnect(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)

	msg := readJSONWithTimeout(t, conn, 2*time.Second)
	if msg["type"] != "session_started" {
		t.Fatalf("expected session_started, got %v", msg)
	}
}

func TestStartExerciseEmitsExerciseStarted(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)
	readJSONWithTimeout(t, conn, 2*time.Second) // session_started

	body, _ := json.Marshal(ClientMessage{
		Type:    TypeStartExercise,
		Payload: json.RawMessage(`{"name":"c-major-scale","mode":"single"}`),
	})
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readJSONWithTimeout(t, conn, 2*time.Second)
	if msg["type"] != "exercise_started" {
		t.Fatalf("expected exercise_started, got %v", msg)
	}
}

func TestTestNoteInjectsJudgement(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)
	readJSONWithTimeout(t, conn, 2*time.Second) // session_started

	startBody, _ := json.Marshal(ClientMessage{
		Type:    TypeStartExercise,
		Payload: json.RawMessage(`{"name":"c-major-scale","mode":"single"}`),
	})
	conn.WriteMessage(websocket.TextMessage, startBody)
	readJSONWithTimeout(t, conn, 2*time.Second) // exercise_started

	noteBody, _ := json.Marshal(ClientMessage{
		Type:    TypeTestNote,
		Payload: json.RawMessage(`{"note":"C4"}`),
	})
	conn.WriteMessage(websocket.TextMessage, noteBody)

	msg := readJSONWithTimeout(t, conn, 2*time.Second)
	if msg["type"] != "judgement" {
		t.Fatalf("expected judgement, got %v", msg)
	}
}

func TestAudioChunkDownmixStereo(t *testing.T) {
	f := domain.AudioFrame{Channels: 2, Samples: []float32{1, 3, 2, 4}}
	out := downmix(f)
	if len(out) != 2 || out[0] != 2 || out[1] != 3 {
		t.Fatalf("unexpected downmix result: %v", out)
	}
}
