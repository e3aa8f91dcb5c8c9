// Package server exposes the bridge over HTTP: the WebSocket endpoint the
// telephony provider streams call audio to, the webhook that returns the
// signaling document pointing the provider at that endpoint, and a liveness
// endpoint.
//
// Each accepted WebSocket connection gets its own telephony StreamHandler
// and bridge Session; nothing is shared between calls.

package server

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/realtime-ai/callbridge/pkg/bridge"
	"github.com/realtime-ai/callbridge/pkg/telephony"
	"github.com/realtime-ai/callbridge/pkg/trace"
)

// Config holds configuration for the media server.
type Config struct {
	// Address is the listen address (e.g., ":8080")
	Address string

	// WebSocketPath is the path for media stream connections (default: "/media")
	WebSocketPath string

	// TwiMLPath is the path for the call webhook (default: "/twiml")
	TwiMLPath string

	// StreamURL is the public URL for WebSocket connections, used in the
	// signaling document. Example: "wss://your-domain.com/media"
	StreamURL string

	// ReadBufferSize for WebSocket (default: 1024)
	ReadBufferSize int

	// WriteBufferSize for WebSocket (default: 1024)
	WriteBufferSize int

	// CustomParameters to pass from the signaling document to the stream
	CustomParameters map[string]string
}

// MediaServer accepts telephony media streams and bridges each one to the
// engine.
type MediaServer struct {
	config    Config
	bridgeCfg bridge.Config

	upgrader websocket.Upgrader
	server   *http.Server

	// Active calls keyed by callSid
	calls   map[string]*activeCall
	callsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// activeCall couples one media stream connection with its bridge session.
type activeCall struct {
	server *MediaServer

	conn    *websocket.Conn
	writeMu sync.Mutex

	stream  *telephony.StreamHandler
	session *bridge.Session

	// callSid is written once when the stream starts and read from engine
	// callback goroutines; both sides go through server.callsMu.
	callSid   string
	startTime time.Time

	closeOnce sync.Once
}

// NewMediaServer creates a media server bridging calls with bridgeCfg.
func NewMediaServer(config Config, bridgeCfg bridge.Config) *MediaServer {
	// Set defaults
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/media"
	}
	if config.TwiMLPath == "" {
		config.TwiMLPath = "/twiml"
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = 1024
	}

	return &MediaServer{
		config:    config,
		bridgeCfg: bridgeCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		calls: make(map[string]*activeCall),
	}
}

// Start starts the HTTP server.
func (s *MediaServer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
	mux.HandleFunc(s.config.TwiMLPath, s.handleTwiML)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:    s.config.Address,
		Handler: mux,
	}

	log.Printf("[MediaServer] Starting server on %s", s.config.Address)
	log.Printf("[MediaServer] WebSocket endpoint: %s", s.config.WebSocketPath)
	log.Printf("[MediaServer] Webhook endpoint: %s", s.config.TwiMLPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[MediaServer] Server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the server gracefully, ending all active calls.
func (s *MediaServer) Stop() error {
	log.Printf("[MediaServer] Stopping server...")

	if s.cancel != nil {
		s.cancel()
	}

	s.callsMu.Lock()
	calls := make([]*activeCall, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	s.calls = make(map[string]*activeCall)
	s.callsMu.Unlock()

	for _, c := range calls {
		c.close()
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}

	s.wg.Wait()
	log.Printf("[MediaServer] Server stopped")
	return nil
}

// CallCount returns the number of active calls.
func (s *MediaServer) CallCount() int {
	s.callsMu.RLock()
	defer s.callsMu.RUnlock()
	return len(s.calls)
}

// handleWebSocket accepts one media stream connection.
func (s *MediaServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Printf("[MediaServer] WebSocket connection from %s", r.RemoteAddr)

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[MediaServer] WebSocket upgrade failed: %v", err)
		return
	}

	call := &activeCall{
		server:    s,
		conn:      wsConn,
		startTime: time.Now(),
	}
	call.stream = telephony.NewStreamHandler(call)
	call.session = bridge.NewSession(s.bridgeCfg, &callSessionEvents{call: call})

	s.wg.Add(1)
	go call.readLoop(s.ctx, &s.wg)
}

// readLoop feeds inbound frames to the stream handler until the socket
// drops or the server stops.
func (c *activeCall) readLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[MediaServer] Read error: %v", err)
			}
			return
		}

		if err := c.stream.HandleMessage(data); err != nil {
			// A single corrupt frame never terminates the call.
			log.Printf("[MediaServer] %v", err)
		}
	}
}

// write sends one outbound message on the media stream socket.
func (c *activeCall) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// close ends the call once: bridge session down, socket closed, registry
// entry removed.
func (c *activeCall) close() {
	c.closeOnce.Do(func() {
		c.session.End()
		c.conn.Close()
		if sid := c.sid(); sid != "" {
			c.server.removeCall(sid)
			log.Printf("[MediaServer] Call %s ended after %v", sid, time.Since(c.startTime).Round(time.Millisecond))
		}
	})
}

func (s *MediaServer) addCall(c *activeCall, callSid string) {
	s.callsMu.Lock()
	c.callSid = callSid
	s.calls[callSid] = c
	s.callsMu.Unlock()
}

func (s *MediaServer) removeCall(callSid string) {
	s.callsMu.Lock()
	delete(s.calls, callSid)
	s.callsMu.Unlock()
}

// --- telephony leg events ---

// OnConnected implements telephony.EventHandler.
func (c *activeCall) OnConnected() {
	log.Printf("[MediaServer] Media stream connected")
}

// sid returns the call identifier, empty until the stream has started.
func (c *activeCall) sid() string {
	c.server.callsMu.RLock()
	defer c.server.callsMu.RUnlock()
	return c.callSid
}

// OnStart brings the bridge session up for the announced stream.
func (c *activeCall) OnStart(streamSid, callSid string) {
	c.server.addCall(c, callSid)

	_, span := trace.StartSession(context.Background(), c.session.ID(), streamSid, callSid)
	defer span.End()

	if err := c.session.Start(c.server.ctx, telephony.SampleRate, telephony.SampleRate); err != nil {
		trace.RecordError(span, err)
		log.Printf("[MediaServer] Failed to start session for call %s: %v", callSid, err)
		c.close()
		return
	}
}

// OnAudio forwards one telephony chunk into the bridge.
func (c *activeCall) OnAudio(samples []float32, timestampMs int64) {
	if err := c.session.SendAudio(samples); err != nil {
		log.Printf("[MediaServer] Dropping inbound chunk: %v", err)
	}
}

// OnStop ends the call.
func (c *activeCall) OnStop() {
	c.close()
}

// OnDTMF forwards pressed digits to the engine as text.
func (c *activeCall) OnDTMF(digit string) {
	if err := c.session.SendText(digit); err != nil {
		log.Printf("[MediaServer] Dropping DTMF digit: %v", err)
	}
}

// OnMark implements telephony.EventHandler.
func (c *activeCall) OnMark(name string) {
	log.Printf("[MediaServer] Mark received: %s", name)
}

// --- bridge session events ---

// callSessionEvents routes session events back onto the telephony socket.
type callSessionEvents struct {
	bridge.NoOpEventHandler
	call *activeCall
}

func (e *callSessionEvents) OnReady() {
	_, span := trace.InstrumentLegStateChange(context.Background(), e.call.session.ID(), "engine", "ready")
	span.End()
	log.Printf("[MediaServer] Engine ready for call %s", e.call.sid())
}

func (e *callSessionEvents) OnAudioOut(samples []float32) {
	data, err := e.call.stream.AudioMessage(samples)
	if err != nil {
		// Stream already gone; nothing to address the audio to.
		return
	}
	if err := e.call.write(data); err != nil {
		log.Printf("[MediaServer] Failed to send audio: %v", err)
	}
}

func (e *callSessionEvents) OnText(text string) {
	log.Printf("[MediaServer] Engine text for call %s: %s", e.call.sid(), text)
}

func (e *callSessionEvents) OnEngineDisconnected(reason string) {
	log.Printf("[MediaServer] Engine leg dropped for call %s (%s), reconnecting", e.call.sid(), reason)
}

func (e *callSessionEvents) OnError(err error) {
	_, span := trace.InstrumentLegError(context.Background(), e.call.session.ID(), "engine", err)
	span.End()
	log.Printf("[MediaServer] Session error for call %s: %v", e.call.sid(), err)
}

func (e *callSessionEvents) OnEnded() {
	// Dropping the socket unblocks the read loop, whose deferred close
	// finishes the teardown. Calling close here directly would re-enter it
	// from inside the session's own shutdown.
	e.call.conn.Close()
}

// --- HTTP handlers ---

// twimlTemplate is the signaling document instructing the provider where to
// open its media stream.
const twimlTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="{{.StreamURL}}">
            {{- range $key, $value := .Parameters}}
            <Parameter name="{{$key}}" value="{{$value}}" />
            {{- end}}
        </Stream>
    </Connect>
</Response>`

var twimlTmpl = template.Must(template.New("twiml").Parse(twimlTemplate))

// handleTwiML serves the signaling document for incoming calls.
func (s *MediaServer) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		log.Printf("[MediaServer] Incoming call: CallSid=%s, From=%s, To=%s",
			r.FormValue("CallSid"), r.FormValue("From"), r.FormValue("To"))
	}

	w.Header().Set("Content-Type", "application/xml")
	err := twimlTmpl.Execute(w, struct {
		StreamURL  string
		Parameters map[string]string
	}{
		StreamURL:  s.config.StreamURL,
		Parameters: s.config.CustomParameters,
	})
	if err != nil {
		log.Printf("[MediaServer] Failed to render signaling document: %v", err)
	}
}

// handleHealth serves the liveness endpoint.
func (s *MediaServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "ok %d\n", s.CallCount())
}
