package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/callbridge/pkg/bridge"
	"github.com/realtime-ai/callbridge/pkg/codec"
	"github.com/realtime-ai/callbridge/pkg/engine"
	"github.com/realtime-ai/callbridge/pkg/telephony"
)

// fakeEngineConn is an in-memory engine socket. Messages queued on in are
// returned by ReadMessage; writes are recorded.
type fakeEngineConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeEngineConn() *fakeEngineConn {
	return &fakeEngineConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeEngineConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, websocket.ErrCloseSent
	}
}

func (c *fakeEngineConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeEngineConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeEngineConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeEngineConn) write(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[i]
}

// fakeEngineDialer hands out fresh connections with the handshake already
// queued, so sessions come up immediately.
type fakeEngineDialer struct {
	mu    sync.Mutex
	conns []*fakeEngineConn
}

func (d *fakeEngineDialer) DialContext(ctx context.Context, url string) (engine.Conn, error) {
	c := newFakeEngineConn()
	c.in <- []byte{0x00}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeEngineDialer) conn(i int) *fakeEngineConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// fakeServerCodec passes audio through as a fixed marker packet.
type fakeServerCodec struct {
	frameSize int
}

func (c *fakeServerCodec) Encode(pcm []float32) ([]byte, error) {
	return []byte{0xAB}, nil
}

func (c *fakeServerCodec) Decode(packet []byte) ([]float32, error) {
	return make([]float32, c.frameSize), nil
}

func (c *fakeServerCodec) Close() error { return nil }

func newTestServer(t *testing.T) (*MediaServer, *fakeEngineDialer, *httptest.Server) {
	t.Helper()

	dialer := &fakeEngineDialer{}
	s := NewMediaServer(Config{
		Address:   ":0",
		StreamURL: "wss://bridge.example.com/media",
		CustomParameters: map[string]string{
			"greeting": "hello",
		},
	}, bridge.Config{
		EngineURL:    "ws://engine.test/stream",
		EngineDialer: dialer,
		CodecFactory: func(sampleRate, frameSize int) (codec.Codec, error) {
			return &fakeServerCodec{frameSize: frameSize}, nil
		},
	})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	t.Cleanup(s.cancel)

	ts := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(ts.Close)
	return s, dialer, ts
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sendJSON(t *testing.T, ws *websocket.Conn, msg telephony.StreamMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func TestCallBridgedEndToEnd(t *testing.T) {
	s, dialer, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	sendJSON(t, ws, telephony.StreamMessage{Event: "connected", Protocol: "Call"})
	sendJSON(t, ws, telephony.StreamMessage{
		Event:     "start",
		StreamSid: "MZ1",
		Start: &telephony.StartPayload{
			StreamSid: "MZ1",
			CallSid:   "CA1",
			MediaFormat: telephony.MediaFormat{
				Encoding:   "audio/x-mulaw",
				SampleRate: telephony.SampleRate,
				Channels:   telephony.Channels,
			},
		},
	})

	waitUntil(t, "engine dial", func() bool { return dialer.conn(0) != nil })
	engineConn := dialer.conn(0)
	waitUntil(t, "call registered", func() bool { return s.CallCount() == 1 })

	s.callsMu.RLock()
	call := s.calls["CA1"]
	s.callsMu.RUnlock()
	require.NotNil(t, call)
	assert.Equal(t, "CA1", call.sid())

	// Four 20ms chunks at 8kHz fill one 80ms engine frame after upsampling.
	silence := base64.StdEncoding.EncodeToString(make([]byte, 160))
	for i := 0; i < 4; i++ {
		sendJSON(t, ws, telephony.StreamMessage{
			Event:     "media",
			StreamSid: "MZ1",
			Media:     &telephony.MediaPayload{Track: "inbound", Timestamp: "0", Payload: silence},
		})
	}

	waitUntil(t, "engine audio write", func() bool { return engineConn.writeCount() >= 1 })
	assert.Equal(t, []byte{0x01, 0xAB}, engineConn.write(0))

	// Engine speaks back. One engine frame downsamples to one outbound
	// media message of 640 μ-law bytes.
	engineConn.in <- []byte{0x01, 0xAB}

	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var out telephony.StreamMessage
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "media", out.Event)
	assert.Equal(t, "MZ1", out.StreamSid)
	require.NotNil(t, out.Media)
	payload, err := base64.StdEncoding.DecodeString(out.Media.Payload)
	require.NoError(t, err)
	assert.Len(t, payload, 640)

	sendJSON(t, ws, telephony.StreamMessage{Event: "stop", StreamSid: "MZ1", Stop: &telephony.StopPayload{CallSid: "CA1"}})

	waitUntil(t, "call removed", func() bool { return s.CallCount() == 0 })
	waitUntil(t, "engine conn closed", func() bool {
		select {
		case <-engineConn.closed:
			return true
		default:
			return false
		}
	})
}

func TestClientDropEndsCall(t *testing.T) {
	s, dialer, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	sendJSON(t, ws, telephony.StreamMessage{
		Event:     "start",
		StreamSid: "MZ2",
		Start:     &telephony.StartPayload{StreamSid: "MZ2", CallSid: "CA2"},
	})
	waitUntil(t, "call registered", func() bool { return s.CallCount() == 1 })

	ws.Close()

	waitUntil(t, "call removed", func() bool { return s.CallCount() == 0 })
	waitUntil(t, "engine conn closed", func() bool {
		conn := dialer.conn(0)
		if conn == nil {
			return false
		}
		select {
		case <-conn.closed:
			return true
		default:
			return false
		}
	})
}

func TestTwiMLDocument(t *testing.T) {
	s := NewMediaServer(Config{
		StreamURL: "wss://bridge.example.com/media",
		CustomParameters: map[string]string{
			"greeting": "hello",
		},
	}, bridge.Config{EngineURL: "ws://engine.test/stream"})

	req := httptest.NewRequest(http.MethodPost, "/twiml", strings.NewReader("CallSid=CA1&From=%2B15550100&To=%2B15550101"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.handleTwiML(rec, req)

	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `<Stream url="wss://bridge.example.com/media">`)
	assert.Contains(t, body, `<Parameter name="greeting" value="hello" />`)
}

func TestHealthEndpoint(t *testing.T) {
	s := NewMediaServer(Config{}, bridge.Config{EngineURL: "ws://engine.test/stream"})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok 0\n", rec.Body.String())
}
