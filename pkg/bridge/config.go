// config.go assembles the full session configuration once, with named
// fields and defaults, instead of merging ad hoc option objects at call
// sites.

package bridge

import (
	"time"

	"github.com/realtime-ai/callbridge/pkg/codec"
	"github.com/realtime-ai/callbridge/pkg/engine"
)

// Engine leg defaults. The frame duration is the engine's native processing
// unit; the reconnect budget is generous because the engine may cold-start
// when the first call of the day arrives.
const (
	DefaultEngineSampleRate     = 24000
	DefaultFrameDuration        = 80 * time.Millisecond
	DefaultMaxBufferedFrames    = 10
	DefaultMaxReconnectAttempts = 30
	DefaultReconnectBaseDelay   = 500 * time.Millisecond
)

// Config holds everything a session needs, assembled once at construction.
type Config struct {
	// EngineURL is the engine WebSocket endpoint (required).
	EngineURL string

	// VoicePrompt and TextPrompt are forwarded to the engine in its
	// connection URL.
	VoicePrompt string
	TextPrompt  string

	// EngineSampleRate is the engine's native rate (default: 24000).
	EngineSampleRate int

	// FrameDuration is the engine's processing unit (default: 80ms, i.e.
	// 1920 samples at 24kHz).
	FrameDuration time.Duration

	// MaxBufferedFrames bounds each direction's accumulation buffer
	// (default: 10 frames).
	MaxBufferedFrames int

	// MaxReconnectAttempts and ReconnectBaseDelay tune the engine leg's
	// reconnect budget (defaults: 30 attempts, 500ms base).
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration

	// CodecFactory constructs the perceptual codec (default: Opus).
	CodecFactory codec.Factory

	// EngineDialer and Clock override the engine leg's socket dialer and
	// timer source. Used by tests; leave nil in production.
	EngineDialer engine.Dialer
	Clock        engine.Clock
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.EngineSampleRate == 0 {
		c.EngineSampleRate = DefaultEngineSampleRate
	}
	if c.FrameDuration == 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.MaxBufferedFrames == 0 {
		c.MaxBufferedFrames = DefaultMaxBufferedFrames
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.CodecFactory == nil {
		c.CodecFactory = codec.NewOpusFactory()
	}
	return c
}

// frameSize returns the engine frame length in samples.
func (c Config) frameSize() int {
	return int(c.FrameDuration * time.Duration(c.EngineSampleRate) / time.Second)
}
