// Package codec wraps the perceptual audio codec used on the engine leg
// behind a small interface so the bridge session can be tested with a
// double and the codec implementation swapped without touching the session.
package codec

import "errors"

// ErrClosed is returned by Encode/Decode after Close.
var ErrClosed = errors.New("codec: closed")

// Codec compresses engine-rate PCM frames into opaque packets and back.
// Implementations hold native resources and must be explicitly closed.
type Codec interface {
	// Encode compresses one frame of normalized samples at the engine rate.
	Encode(pcm []float32) ([]byte, error)

	// Decode expands one packet back into normalized samples.
	Decode(packet []byte) ([]float32, error)

	// Close releases codec resources. The codec is unusable afterwards.
	Close() error
}

// Factory constructs a codec for the given engine sample rate and frame
// size in samples. Injected into the bridge session.
type Factory func(sampleRate, frameSize int) (Codec, error)
