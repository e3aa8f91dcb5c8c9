// client.go implements the engine leg: a WebSocket client whose connection
// URL carries the session prompts and whose lifecycle runs
//
//	Disconnected → Connecting → AwaitingHandshake → Ready → Closing
//
// The first message on a fresh socket must be the engine's handshake; audio
// and text sends are rejected until it arrives. Socket loss is recovered by
// bounded reconnection: pre-handshake failures are retried inside Connect
// with a base×1.5^attempt delay, post-Ready drops are retried on a timer
// with a base×2^attempt delay, both capped at the same attempt ceiling.
// Exhausting the budget surfaces a ConnectionError naming the attempt count.

package engine

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"
)

// State is the engine leg lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Default connection configuration. The attempt budget is generous because
// the engine may cold-start on the first call of the day.
const (
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectBaseDelay   = 500 * time.Millisecond
)

// Config holds the engine client configuration.
type Config struct {
	// URL is the engine WebSocket endpoint (required).
	URL string

	// VoicePrompt and TextPrompt are embedded in the connection URL as
	// query parameters.
	VoicePrompt string
	TextPrompt  string

	// AutoReconnect enables retrying dropped connections.
	AutoReconnect bool

	// MaxReconnectAttempts caps consecutive reconnect attempts
	// (default: 10).
	MaxReconnectAttempts int

	// ReconnectBaseDelay is the base backoff delay (default: 500ms).
	ReconnectBaseDelay time.Duration

	// Dialer opens the underlying socket (default: WebSocket dialer).
	Dialer Dialer

	// Clock drives backoff timers (default: real time).
	Clock Clock
}

// EventHandler receives engine leg events. Callbacks run on the client's
// read goroutine and must not block.
type EventHandler interface {
	// OnReady is called when the handshake completes, including after a
	// successful reconnect.
	OnReady()

	// OnAudio is called with the opaque codec packet of an audio message.
	OnAudio(packet []byte)

	// OnText is called with the payload of a text message.
	OnText(text string)

	// OnControl is called with the action of a control message.
	OnControl(action string)

	// OnMetadata is called with the metadata payload, nil if malformed.
	OnMetadata(meta json.RawMessage)

	// OnDisconnected is called when a Ready connection drops.
	OnDisconnected(reason string)

	// OnError is called on terminal failures, e.g. reconnect exhaustion.
	OnError(err error)
}

// NoOpEventHandler is a no-op implementation for embedding.
type NoOpEventHandler struct{}

func (*NoOpEventHandler) OnReady()                        {}
func (*NoOpEventHandler) OnAudio(packet []byte)           {}
func (*NoOpEventHandler) OnText(text string)              {}
func (*NoOpEventHandler) OnControl(action string)         {}
func (*NoOpEventHandler) OnMetadata(meta json.RawMessage) {}
func (*NoOpEventHandler) OnDisconnected(reason string)    {}
func (*NoOpEventHandler) OnError(err error)               {}

// Client manages one engine leg connection.
type Client struct {
	cfg     Config
	handler EventHandler

	mu                sync.Mutex
	state             State
	conn              Conn
	closed            bool
	retryTimer        Timer // pending post-Ready reconnect, at most one
	reconnectAttempts int

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewClient creates an engine client. The handler may be nil.
func NewClient(cfg Config, handler EventHandler) *Client {
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = wsDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if handler == nil {
		handler = &NoOpEventHandler{}
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		state:   StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the engine and blocks until the handshake is observed or
// the attempt budget is exhausted. Pre-handshake failures (dial errors and
// closes before the handshake) retry with a base×1.5^attempt delay when
// auto-reconnect is enabled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &StateError{Op: "connect", State: StateClosing}
	}
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "connect", State: state}
	}
	c.mu.Unlock()

	var lastErr error
	delay := c.cfg.ReconnectBaseDelay

	maxAttempts := c.cfg.MaxReconnectAttempts
	if !c.cfg.AutoReconnect {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// A concurrent Close must end the loop, not burn the remaining
		// attempts.
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return &StateError{Op: "connect", State: StateClosing}
		}

		err := c.connectOnce(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("[Engine] Connection attempt %d/%d failed: %v", attempt+1, maxAttempts, err)

		if attempt < maxAttempts-1 {
			select {
			case <-c.cfg.Clock.After(delay):
				delay = delay * 3 / 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return &ConnectionError{Attempts: maxAttempts, Err: lastErr}
}

// connectOnce performs a single dial and waits for the engine handshake.
// On success the client is Ready and the read pump is running.
func (c *Client) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.cfg.Dialer.DialContext(ctx, c.connectionURL())
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return &StateError{Op: "connect", State: StateClosing}
	}
	c.conn = conn
	c.state = StateAwaitingHandshake
	c.mu.Unlock()

	// The engine speaks first: consume messages until its handshake.
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.clearConn(conn)
			c.setState(StateDisconnected)
			return err
		}

		msg := Decode(data)
		if msg.Type == MessageTypeHandshake {
			break
		}
		c.dispatch(msg)
	}

	c.setState(StateReady)
	c.wg.Add(1)
	go c.readPump(conn)
	c.handler.OnReady()
	return nil
}

// connectionURL embeds the prompts into the configured endpoint.
func (c *Client) connectionURL() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	if c.cfg.VoicePrompt != "" {
		q.Set("voice_prompt", c.cfg.VoicePrompt)
	}
	if c.cfg.TextPrompt != "" {
		q.Set("text_prompt", c.cfg.TextPrompt)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SendAudio sends an opaque codec packet. The client must be Ready.
func (c *Client) SendAudio(packet []byte) error {
	return c.send("send audio", EncodeAudio(packet))
}

// SendText sends a text payload. The client must be Ready.
func (c *Client) SendText(text string) error {
	return c.send("send text", EncodeText(text))
}

func (c *Client) send(op string, data []byte) error {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: op, State: state}
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(data)
}

// Close disables reconnection, closes the socket, and returns once the read
// pump has exited. Calling Close on a closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosing
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	return nil
}

// readPump consumes engine messages after the handshake.
func (c *Client) readPump(conn Conn) {
	defer c.wg.Done()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.dispatch(Decode(data))
	}
}

// dispatch routes one decoded message to the handler.
func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case MessageTypeHandshake:
		// Duplicate handshake, nothing to do.
	case MessageTypeAudio:
		c.handler.OnAudio(msg.Audio)
	case MessageTypeText:
		c.handler.OnText(msg.Text)
	case MessageTypeControl:
		c.handler.OnControl(msg.Control)
	case MessageTypeMetadata:
		c.handler.OnMetadata(msg.Metadata)
	case MessageTypeError:
		c.handler.OnError(&EngineError{Message: msg.Error})
	case MessageTypePing:
		// Keepalive, nothing to do.
	case MessageTypeUnknown:
		log.Printf("[Engine] Ignoring unknown message type %d", msg.Code)
	}
}

// handleDisconnect reacts to a socket loss after Ready.
func (c *Client) handleDisconnect(conn Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		// Deliberate close or an already superseded connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	reason := err.Error()
	log.Printf("[Engine] Disconnected: %s", reason)
	c.handler.OnDisconnected(reason)

	if c.cfg.AutoReconnect {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the retry timer for a post-Ready drop. At most one
// timer is pending at a time; overlapping disconnect notifications must not
// double-schedule.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.retryTimer != nil {
		return
	}
	if c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		attempts := c.reconnectAttempts
		go c.handler.OnError(&ConnectionError{Attempts: attempts})
		return
	}

	delay := c.cfg.ReconnectBaseDelay << uint(c.reconnectAttempts)
	c.reconnectAttempts++
	log.Printf("[Engine] Scheduling reconnect attempt %d/%d in %v",
		c.reconnectAttempts, c.cfg.MaxReconnectAttempts, delay)

	c.retryTimer = c.cfg.Clock.AfterFunc(delay, c.retryConnect)
}

// retryConnect runs on the retry timer: one dial attempt, then either reset
// the attempt counter or schedule the next try.
func (c *Client) retryConnect() {
	c.mu.Lock()
	c.retryTimer = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if err := c.connectOnce(context.Background()); err != nil {
		log.Printf("[Engine] Reconnect failed: %v", err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	c.reconnectAttempts = 0
	c.mu.Unlock()
}

// setState updates the lifecycle state.
func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// clearConn forgets conn if it is still the active connection.
func (c *Client) clearConn(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}
