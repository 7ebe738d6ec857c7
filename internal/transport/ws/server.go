package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/hammamikhairi/pianopractice/internal/config"
	"github.com/hammamikhairi/pianopractice/internal/detect"
	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
	"github.com/hammamikhairi/pianopractice/internal/session"
)

// StartExercisePayload decodes start_exercise{name, mode}.
type StartExercisePayload struct {
	Name string `json:"name"`
	Mode string `json:"mode"` // "single" | "chord" | "hybrid", default "hybrid"
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades incoming HTTP connections to WebSocket and runs one
// session per connection, built from the shared Deps bundle.
type Server struct {
	log       *logger.Logger
	deps      session.Deps
	cfg       config.PipelineConfig
	exercises domain.ExerciseSource
	arbiterFn func() *detect.Arbiter
}

// NewServer builds a transport-layer server. arbiterFn is called once
// per connection so the arbiter passed to each session is whatever the
// caller's PipelineContext constructs; typically it just returns the
// same shared *detect.Arbiter every time.
func NewServer(log *logger.Logger, deps session.Deps, cfg config.PipelineConfig, exercises domain.ExerciseSource, arbiterFn func() *detect.Arbiter) *Server {
	return &Server{log: log, deps: deps, cfg: cfg, exercises: exercises, arbiterFn: arbiterFn}
}

// ServeHTTP implements http.Handler, upgrading the connection and
// running its session loop until the socket closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("ws: upgrade failed: %v", err)
		return
	}

	conn := New(wsConn, s.log)
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID := uuid.NewString()
	s.emit(ctx, conn, "session_started", map[string]any{
		"session_id":         sessionID,
		"pipeline_available": true,
	})

	h := &sessionHandler{
		server: s,
		conn:   conn,
		id:     sessionID,
		log:    s.log.Named("session." + sessionID[:8]),
	}
	h.run(ctx)
}

func (s *Server) emit(ctx context.Context, conn *Conn, eventType string, payload any) {
	ev := domain.EventEnvelope{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
	if err := conn.Emit(ctx, ev); err != nil {
		s.log.Warn("ws: emit %s failed: %v", eventType, err)
	}
}

// sessionHandler owns the control-message dispatch loop for one
// connection: it constructs a session.Coordinator on start_exercise and
// tears it down on stop_exercise, transport disconnect, or the
// audio-frame pull loop ending.
type sessionHandler struct {
	server *Server
	conn   *Conn
	id     string
	log    *logger.Logger

	coord *session.Coordinator
}

func (h *sessionHandler) run(ctx context.Context) {
	defer func() {
		if h.coord != nil {
			h.coord.Close(context.Background())
		}
	}()

	frameDone := make(chan struct{})
	go func() {
		defer close(frameDone)
		h.pullFrames(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frameDone:
			return
		case ctrl, ok := <-h.conn.Controls():
			if !ok {
				return
			}
			h.handleControl(ctx, ctrl)
		}
	}
}

func (h *sessionHandler) pullFrames(ctx context.Context) {
	for {
		frame, ok, err := h.conn.Next(ctx)
		if err != nil || !ok {
			return
		}
		if h.coord == nil {
			continue // audio arriving before start_exercise: drop
		}
		if err := h.coord.IngestChunk(ctx, downmix(frame)); err != nil {
			h.log.Warn("ingest chunk: %v", err)
		}
	}
}

func downmix(f domain.AudioFrame) []float32 {
	if f.Channels <= 1 {
		return f.Samples
	}
	out := make([]float32, len(f.Samples)/f.Channels)
	for i := range out {
		var sum float32
		for c := 0; c < f.Channels; c++ {
			sum += f.Samples[i*f.Channels+c]
		}
		out[i] = sum / float32(f.Channels)
	}
	return out
}

func (h *sessionHandler) handleControl(ctx context.Context, ctrl Control) {
	switch ctrl.Type {
	case TypeStartExercise:
		h.startExercise(ctx, ctrl.Payload)
	case TypeStopExercise:
		if h.coord != nil {
			h.coord.Close(ctx)
			h.coord = nil
		}
	case TypeReplayLastBar:
		var p ReplayLastBarPayload
		if json.Unmarshal(ctrl.Payload, &p) == nil && h.coord != nil {
			h.coord.ReplayLastBars(p.Bars, h.coord.ElapsedS())
		}
	case TypeSetTempoMultiplier:
		var p SetTempoMultiplierPayload
		if json.Unmarshal(ctrl.Payload, &p) == nil && h.coord != nil {
			applied := h.coord.SetTempoMultiplier(p.Multiplier)
			h.server.emit(ctx, h.conn, "tempo_change", map[string]any{
				"tempo_multiplier": applied,
			})
		}
	case TypeTestNote:
		var p TestNotePayload
		if json.Unmarshal(ctrl.Payload, &p) == nil && h.coord != nil {
			h.coord.InjectTestNote(ctx, p.Note, h.coord.ElapsedS())
		}
	case TypeCountInComplete:
		if h.coord != nil {
			h.coord.CountInComplete()
		}
	case TypeAttemptComplete:
		// Informational only — the follower derives all state it needs
		// from detection timestamps; accepted without effect.
	default:
		h.log.Warn("ws: unrecognised control message type %q", ctrl.Type)
	}
}

func (h *sessionHandler) startExercise(ctx context.Context, payload json.RawMessage) {
	var p StartExercisePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.log.Warn("start_exercise: malformed payload: %v", err)
		return
	}

	ex, err := h.server.exercises.Get(ctx, p.Name)
	if err != nil {
		h.server.emit(ctx, h.conn, "error", map[string]any{"message": fmt.Sprintf("exercise %q not found", p.Name)})
		return
	}

	mode := detect.ModeHybrid
	switch p.Mode {
	case "single":
		mode = detect.ModeSingle
	case "chord":
		mode = detect.ModeChord
	}

	deps := h.server.deps
	deps.Sink = h.conn
	deps.Arbiter = h.server.arbiterFn()

	coord, err := session.New(ctx, h.id, ex, followerConfigFor(ex, h.server.cfg), mode, deps)
	if err != nil {
		h.server.emit(ctx, h.conn, "error", map[string]any{"message": err.Error()})
		return
	}
	h.coord = coord

	h.server.emit(ctx, h.conn, "exercise_started", exerciseStartedPayload(ex))
}
