// Package bridge orchestrates one call: it wires the telephony leg to the
// engine leg through the resampler, the frame buffers and the perceptual
// codec.
//
// Forward path:  telephony chunk (8kHz) → resample to engine rate → frame
// buffer → on each complete frame, codec encode → engine leg.
// Reverse path:  engine audio packet → codec decode → frame buffer →
// resample to telephony rate → OnAudioOut.
//
// A session handles exactly one call and shares no state with other
// sessions. Failure isolation: a corrupt wire frame or a codec failure on a
// single frame is logged and dropped; only exhausting the engine reconnect
// budget ends the call.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/realtime-ai/callbridge/pkg/audio"
	"github.com/realtime-ai/callbridge/pkg/codec"
	"github.com/realtime-ai/callbridge/pkg/engine"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateActive
	StateEnding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventHandler receives session-level events. Callbacks must not block;
// OnAudioOut and OnText run on the engine leg's read goroutine.
type EventHandler interface {
	// OnReady is called once the engine leg completes its handshake.
	OnReady()

	// OnAudioOut delivers engine audio resampled to the session's output
	// rate, ready for the telephony leg.
	OnAudioOut(samples []float32)

	// OnText delivers engine text output (e.g. transcripts).
	OnText(text string)

	// OnEngineDisconnected reports a dropped engine connection that is
	// being retried.
	OnEngineDisconnected(reason string)

	// OnError reports failures. Terminal engine failures end the session.
	OnError(err error)

	// OnEnded is called exactly once when the session closes.
	OnEnded()
}

// NoOpEventHandler is a no-op implementation for embedding.
type NoOpEventHandler struct{}

func (*NoOpEventHandler) OnReady()                           {}
func (*NoOpEventHandler) OnAudioOut(samples []float32)       {}
func (*NoOpEventHandler) OnText(text string)                 {}
func (*NoOpEventHandler) OnEngineDisconnected(reason string) {}
func (*NoOpEventHandler) OnError(err error)                  {}
func (*NoOpEventHandler) OnEnded()                           {}

// Session bridges one telephony call to one engine connection.
type Session struct {
	id      string
	cfg     Config
	handler EventHandler

	mu         sync.Mutex
	state      State
	inputRate  int
	outputRate int

	engineClient *engine.Client
	cod          codec.Codec
	inBuf        *audio.FrameBuffer // toward the engine, at engine rate
	outBuf       *audio.FrameBuffer // from the engine, at engine rate
	upsampler    *audio.StreamResampler
	downsampler  *audio.StreamResampler
}

// NewSession creates an idle session. handler may be nil.
func NewSession(cfg Config, handler EventHandler) *Session {
	if handler == nil {
		handler = &NoOpEventHandler{}
	}
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg.withDefaults(),
		handler: handler,
		state:   StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start brings the session up for a call whose telephony audio arrives at
// inputRate and leaves at outputRate. It blocks until the engine leg is
// ready or its connect budget is exhausted. On failure all partially built
// resources are released and the session returns to Idle.
func (s *Session) Start(ctx context.Context, inputRate, outputRate int) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		if state == StateClosed {
			return &StateError{Op: "start", State: state}
		}
		return ErrSessionActive
	}
	s.state = StateConnecting
	s.inputRate = inputRate
	s.outputRate = outputRate
	s.mu.Unlock()

	frameSize := s.cfg.frameSize()
	engineRate := s.cfg.EngineSampleRate

	cod, err := s.cfg.CodecFactory(engineRate, frameSize)
	if err != nil {
		s.rollback(nil)
		return err
	}

	client := engine.NewClient(engine.Config{
		URL:                  s.cfg.EngineURL,
		VoicePrompt:          s.cfg.VoicePrompt,
		TextPrompt:           s.cfg.TextPrompt,
		AutoReconnect:        true,
		MaxReconnectAttempts: s.cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   s.cfg.ReconnectBaseDelay,
		Dialer:               s.cfg.EngineDialer,
		Clock:                s.cfg.Clock,
	}, &engineEvents{session: s})

	s.mu.Lock()
	s.cod = cod
	s.engineClient = client
	s.inBuf = audio.NewFrameBuffer(frameSize, s.cfg.MaxBufferedFrames)
	s.outBuf = audio.NewFrameBuffer(frameSize, s.cfg.MaxBufferedFrames)
	s.upsampler = audio.NewStreamResampler(inputRate, engineRate)
	s.downsampler = audio.NewStreamResampler(engineRate, outputRate)
	s.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		s.rollback(cod)
		return err
	}

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	log.Printf("[Bridge] Session %s active (%dHz in, %dHz out, %d-sample frames)",
		s.id, inputRate, outputRate, frameSize)
	return nil
}

// rollback releases partially built resources after a failed Start. A
// session that was concurrently ended stays Closed.
func (s *Session) rollback(cod codec.Codec) {
	if cod != nil {
		cod.Close()
	}
	s.mu.Lock()
	s.cod = nil
	s.engineClient = nil
	s.inBuf = nil
	s.outBuf = nil
	s.upsampler = nil
	s.downsampler = nil
	if s.state == StateConnecting || s.state == StateReady {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// SendAudio submits telephony audio at the session's input rate. Complete
// engine frames are encoded and forwarded; a codec failure drops that frame
// and the session continues.
func (s *Session) SendAudio(samples []float32) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return &StateError{Op: "send audio", State: state}
	}

	resampled := s.upsampler.Process(samples)
	s.inBuf.Push(resampled)

	var frames [][]float32
	for s.inBuf.HasFrame() {
		frames = append(frames, s.inBuf.ReadFrame())
	}
	cod := s.cod
	client := s.engineClient
	s.mu.Unlock()

	for _, frame := range frames {
		packet, err := cod.Encode(frame)
		if err != nil {
			log.Printf("[Bridge] Session %s: dropping frame, codec encode failed: %v", s.id, err)
			continue
		}
		if err := client.SendAudio(packet); err != nil {
			log.Printf("[Bridge] Session %s: dropping frame, engine send failed: %v", s.id, err)
		}
	}
	return nil
}

// SendText forwards text to the engine leg.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return &StateError{Op: "send text", State: state}
	}
	client := s.engineClient
	s.mu.Unlock()

	return client.SendText(text)
}

// End shuts the session down: engine leg closed gracefully, codec and
// buffers released, OnEnded emitted exactly once. Safe to call from any
// state and more than once.
func (s *Session) End() {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateEnding {
		s.mu.Unlock()
		return
	}
	wasIdle := s.state == StateIdle
	s.state = StateEnding
	client := s.engineClient
	cod := s.cod
	s.engineClient = nil
	s.cod = nil
	s.inBuf = nil
	s.outBuf = nil
	s.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if cod != nil {
		cod.Close()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if !wasIdle {
		log.Printf("[Bridge] Session %s ended", s.id)
	}
	s.handler.OnEnded()
}

// handleEngineAudio runs the reverse path for one engine audio packet.
func (s *Session) handleEngineAudio(packet []byte) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	cod := s.cod
	s.mu.Unlock()

	pcm, err := cod.Decode(packet)
	if err != nil {
		log.Printf("[Bridge] Session %s: dropping packet, codec decode failed: %v", s.id, err)
		return
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.outBuf.Push(pcm)
	var out [][]float32
	for s.outBuf.HasFrame() {
		out = append(out, s.downsampler.Process(s.outBuf.ReadFrame()))
	}
	s.mu.Unlock()

	for _, samples := range out {
		s.handler.OnAudioOut(samples)
	}
}

// engineEvents adapts engine leg events to session-level events.
type engineEvents struct {
	engine.NoOpEventHandler
	session *Session

	readyOnce sync.Once
}

func (e *engineEvents) OnReady() {
	s := e.session
	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateReady
	}
	s.mu.Unlock()

	e.readyOnce.Do(s.handler.OnReady)
}

func (e *engineEvents) OnAudio(packet []byte) {
	e.session.handleEngineAudio(packet)
}

func (e *engineEvents) OnText(text string) {
	e.session.handler.OnText(text)
}

func (e *engineEvents) OnMetadata(meta json.RawMessage) {
	if meta == nil {
		log.Printf("[Bridge] Session %s: engine metadata unreadable, ignoring", e.session.id)
		return
	}
	log.Printf("[Bridge] Session %s: engine metadata: %s", e.session.id, meta)
}

func (e *engineEvents) OnDisconnected(reason string) {
	e.session.handler.OnEngineDisconnected(reason)
}

func (e *engineEvents) OnError(err error) {
	s := e.session
	s.handler.OnError(err)

	// Reconnect exhaustion is terminal for the call; engine-reported
	// errors are not.
	var connErr *engine.ConnectionError
	if errors.As(err, &connErr) {
		s.End()
	}
}
