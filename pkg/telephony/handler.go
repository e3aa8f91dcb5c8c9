// handler.go implements the per-call protocol handler for the telephony leg.
// It parses inbound Media Streams JSON into events for a registered handler
// and builds outbound media/mark/clear messages, decoding and encoding the
// μ-law payloads on the way through.
//
// A StreamHandler is active between a start and the matching stop event;
// outbound builders fail with a StateError outside that window so audio is
// never addressed to a stream that no longer exists.

package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/realtime-ai/callbridge/pkg/audio"
)

// StateError reports an outbound operation attempted without an active
// stream.
type StateError struct {
	Op string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("telephony: %s: no active stream", e.Op)
}

// EventHandler receives parsed telephony leg events. Callbacks run on the
// goroutine feeding HandleMessage.
type EventHandler interface {
	// OnConnected is called for the provider's connected preamble.
	OnConnected()

	// OnStart is called when a stream starts and ids become known.
	OnStart(streamSid, callSid string)

	// OnAudio is called with one decoded media chunk: normalized samples at
	// 8kHz and the provider timestamp in ms since stream start.
	OnAudio(samples []float32, timestampMs int64)

	// OnStop is called when the stream ends.
	OnStop()

	// OnDTMF is called with a pressed digit.
	OnDTMF(digit string)

	// OnMark is called when a playback marker is echoed back.
	OnMark(name string)
}

// NoOpEventHandler is a no-op implementation for embedding.
type NoOpEventHandler struct{}

func (*NoOpEventHandler) OnConnected()                                 {}
func (*NoOpEventHandler) OnStart(streamSid, callSid string)            {}
func (*NoOpEventHandler) OnAudio(samples []float32, timestampMs int64) {}
func (*NoOpEventHandler) OnStop()                                      {}
func (*NoOpEventHandler) OnDTMF(digit string)                          {}
func (*NoOpEventHandler) OnMark(name string)                           {}

// StreamHandler parses one call's inbound Media Streams messages and builds
// its outbound ones. Stream ids are captured from the start event and
// cleared on stop.
type StreamHandler struct {
	handler EventHandler

	mu        sync.RWMutex
	streamSid string
	callSid   string
}

// NewStreamHandler creates a handler for one call. handler may be nil.
func NewStreamHandler(handler EventHandler) *StreamHandler {
	if handler == nil {
		handler = &NoOpEventHandler{}
	}
	return &StreamHandler{handler: handler}
}

// StreamSid returns the active stream id, or "" when inactive.
func (h *StreamHandler) StreamSid() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streamSid
}

// CallSid returns the active call id, or "" when inactive.
func (h *StreamHandler) CallSid() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.callSid
}

// IsActive reports whether a stream is currently active.
func (h *StreamHandler) IsActive() bool {
	return h.StreamSid() != ""
}

// HandleMessage parses one inbound JSON message and dispatches the event.
// Unknown event types are logged and skipped; only malformed JSON is an
// error, and the caller is expected to keep the call alive either way.
func (h *StreamHandler) HandleMessage(data []byte) error {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("telephony: parse message: %w", err)
	}

	switch msg.Event {
	case "connected":
		h.handler.OnConnected()
	case "start":
		h.handleStart(&msg)
	case "media":
		h.handleMedia(&msg)
	case "stop":
		h.handleStop()
	case "dtmf":
		if msg.DTMF != nil {
			h.handler.OnDTMF(msg.DTMF.Digit)
		}
	case "mark":
		if msg.Mark != nil {
			h.handler.OnMark(msg.Mark.Name)
		}
	default:
		log.Printf("[Telephony] Ignoring unknown event %q", msg.Event)
	}
	return nil
}

func (h *StreamHandler) handleStart(msg *StreamMessage) {
	if msg.Start == nil {
		return
	}

	h.mu.Lock()
	h.streamSid = msg.Start.StreamSid
	h.callSid = msg.Start.CallSid
	h.mu.Unlock()

	log.Printf("[Telephony] Stream started - StreamSid: %s, CallSid: %s",
		msg.Start.StreamSid, msg.Start.CallSid)
	h.handler.OnStart(msg.Start.StreamSid, msg.Start.CallSid)
}

func (h *StreamHandler) handleMedia(msg *StreamMessage) {
	if msg.Media == nil {
		return
	}

	payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		log.Printf("[Telephony] Dropping media chunk with bad base64: %v", err)
		return
	}

	ts, err := strconv.ParseInt(msg.Media.Timestamp, 10, 64)
	if err != nil {
		ts = time.Now().UnixMilli()
	}

	h.handler.OnAudio(audio.MuLawDecodeFrame(payload), ts)
}

func (h *StreamHandler) handleStop() {
	h.mu.Lock()
	callSid := h.callSid
	h.streamSid = ""
	h.callSid = ""
	h.mu.Unlock()

	log.Printf("[Telephony] Stream stopped - CallSid: %s", callSid)
	h.handler.OnStop()
}

// AudioMessage builds an outbound media message from normalized samples at
// 8kHz: μ-law encode, base64, wrap in the provider's media JSON shape.
func (h *StreamHandler) AudioMessage(samples []float32) ([]byte, error) {
	streamSid := h.StreamSid()
	if streamSid == "" {
		return nil, &StateError{Op: "send audio"}
	}

	payload := base64.StdEncoding.EncodeToString(audio.MuLawEncodeFrame(samples))
	return json.Marshal(StreamMessage{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: payload},
	})
}

// MarkMessage builds an outbound playback marker.
func (h *StreamHandler) MarkMessage(name string) ([]byte, error) {
	streamSid := h.StreamSid()
	if streamSid == "" {
		return nil, &StateError{Op: "send mark"}
	}

	return json.Marshal(StreamMessage{
		Event:     "mark",
		StreamSid: streamSid,
		Mark:      &MarkPayload{Name: name},
	})
}

// ClearMessage builds the control message that discards buffered playback.
func (h *StreamHandler) ClearMessage() ([]byte, error) {
	streamSid := h.StreamSid()
	if streamSid == "" {
		return nil, &StateError{Op: "clear audio"}
	}

	return json.Marshal(StreamMessage{
		Event:     "clear",
		StreamSid: streamSid,
	})
}
