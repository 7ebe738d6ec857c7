// Package ws is the WebSocket transport binding: it turns a
// *websocket.Conn into a domain.FrameSource of audio_chunk frames and a
// domain.EventSink for egress events, and demultiplexes every other
// client→server control message onto a channel the session layer reads
// independently. The core pipeline never imports this package; it only
// sees the two domain interfaces.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

// Control message type tags (client→server), per the external
// interface's control-message table.
const (
	TypeStartExercise     = "start_exercise"
	TypeStopExercise      = "stop_exercise"
	TypeReplayLastBar     = "replay_last_bar"
	TypeSetTempoMultiplier = "set_tempo_multiplier"
	TypeCountInComplete   = "count_in_complete"
	TypeAudioChunk        = "audio_chunk"
	TypeAttemptComplete   = "attempt_complete"
	TypeTestNote          = "test_note"
)

// ClientMessage is the envelope every inbound control or audio message
// arrives in: a type tag plus a type-specific JSON payload.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AudioChunkPayload is the decoded payload of an audio_chunk message.
type AudioChunkPayload struct {
	PCMSamples  []float32 `json:"pcm_samples"`
	SampleRate  int       `json:"sample_rate"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// ReplayLastBarPayload decodes replay_last_bar{bars}.
type ReplayLastBarPayload struct {
	Bars int `json:"bars"`
}

// SetTempoMultiplierPayload decodes set_tempo_multiplier{multiplier}.
type SetTempoMultiplierPayload struct {
	Multiplier float64 `json:"multiplier"`
}

// TestNotePayload decodes test_note{note} (debug inject).
type TestNotePayload struct {
	Note string `json:"note"`
}

// Control is a demultiplexed control message ready for the session
// layer to act on, distinct from audio_chunk frames which flow through
// Next instead.
type Control struct {
	Type    string
	Payload json.RawMessage
}

var errUnsupportedChannel = errors.New("ws: message arrived on unexpected channel type")

// Conn wraps one client connection. It runs a single read pump that
// demultiplexes inbound JSON frames between an audio-frame channel
// (consumed via Next, satisfying domain.FrameSource) and a control
// channel (consumed via Controls). Writes go through a mutex since
// gorilla's Conn forbids concurrent writers.
type Conn struct {
	ws  *websocket.Conn
	log *logger.Logger

	writeMu sync.Mutex

	frames   chan domain.AudioFrame
	controls chan Control
	readErr  chan error
}

// New wraps an already-upgraded WebSocket connection and starts its
// read pump. Call Close when the session ends to stop the pump and
// release the underlying socket.
func New(conn *websocket.Conn, log *logger.Logger) *Conn {
	c := &Conn{
		ws:       conn,
		log:      log,
		frames:   make(chan domain.AudioFrame, 16),
		controls: make(chan Control, 16),
		readErr:  make(chan error, 1),
	}
	go c.readPump()
	return c
}

func (c *Conn) readPump() {
	defer close(c.frames)
	defer close(c.controls)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr <- err
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn("ws: malformed client message, ignoring: %v", err)
			continue
		}

		if msg.Type == TypeAudioChunk {
			var payload AudioChunkPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				c.log.Warn("ws: malformed audio_chunk payload, ignoring: %v", err)
				continue
			}
			frame := domain.AudioFrame{
				Samples:     payload.PCMSamples,
				Channels:    1,
				SampleRate:  payload.SampleRate,
				TimestampMs: payload.TimestampMs,
			}
			select {
			case c.frames <- frame:
			default:
				c.log.Warn("ws: frame backlog full, dropping oldest chunk")
				select {
				case <-c.frames:
				default:
				}
				c.frames <- frame
			}
			continue
		}

		select {
		case c.controls <- Control{Type: msg.Type, Payload: msg.Payload}:
		default:
			c.log.Warn("ws: control backlog full, dropping %s message", msg.Type)
		}
	}
}

// Next implements domain.FrameSource: it blocks until an audio_chunk
// frame arrives, ctx is cancelled, or the connection closes.
func (c *Conn) Next(ctx context.Context) (domain.AudioFrame, bool, error) {
	select {
	case <-ctx.Done():
		return domain.AudioFrame{}, false, ctx.Err()
	case f, ok := <-c.frames:
		if !ok {
			select {
			case err := <-c.readErr:
				if errors.Is(err, websocket.ErrCloseSent) {
					return domain.AudioFrame{}, false, nil
				}
				return domain.AudioFrame{}, false, err
			default:
				return domain.AudioFrame{}, false, nil
			}
		}
		return f, true, nil
	}
}

// Controls returns the channel of demultiplexed control messages.
// Closed once the connection's read pump exits.
func (c *Conn) Controls() <-chan Control {
	return c.controls
}

// Emit implements domain.EventSink by marshalling the envelope as a
// single JSON text frame.
func (c *Conn) Emit(ctx context.Context, ev domain.EventEnvelope) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ws: marshal event %s: %w", ev.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, body)
}

// Close tears down the underlying socket.
func (c *Conn) Close() error {
	return c.ws.Close()
}
