// opus.go implements the Codec interface with libopus.
//
// The engine's native frame (80ms) is longer than the largest frame libopus
// accepts, so one engine frame is carried as a sequence of 20ms Opus
// packets, each prefixed with its big-endian uint16 length. Decode accepts
// the same format and concatenates the recovered subframes.

package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/hraban/opus"
)

const (
	// DefaultBitrate for speech over the engine leg.
	DefaultBitrate = 32000

	// maxPacketSize is the largest encoded Opus packet we accept.
	maxPacketSize = 4000
)

// OpusCodec carries engine audio frames as length-prefixed Opus packets.
type OpusCodec struct {
	encoder    *opus.Encoder
	decoder    *opus.Decoder
	sampleRate int
	frameSize  int
	subframe   int // samples per Opus packet (20ms)
	closed     bool
}

// NewOpusCodec creates a codec for mono audio at sampleRate, packetizing
// frames of frameSize samples. frameSize must be a multiple of 20ms at the
// given rate.
func NewOpusCodec(sampleRate, frameSize int) (*OpusCodec, error) {
	subframe := sampleRate / 50 // 20ms
	if frameSize <= 0 || frameSize%subframe != 0 {
		return nil, fmt.Errorf("codec: frame size %d is not a multiple of %d samples (20ms at %dHz)",
			frameSize, subframe, sampleRate)
	}

	encoder, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("codec: create encoder: %w", err)
	}
	encoder.SetBitrate(DefaultBitrate)
	encoder.SetComplexity(10)
	encoder.SetDTX(true)

	decoder, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("codec: create decoder: %w", err)
	}

	return &OpusCodec{
		encoder:    encoder,
		decoder:    decoder,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		subframe:   subframe,
	}, nil
}

// NewOpusFactory returns a Factory producing OpusCodec instances.
func NewOpusFactory() Factory {
	return func(sampleRate, frameSize int) (Codec, error) {
		return NewOpusCodec(sampleRate, frameSize)
	}
}

// Encode compresses one engine frame into a packet sequence.
func (c *OpusCodec) Encode(pcm []float32) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if len(pcm) != c.frameSize {
		return nil, fmt.Errorf("codec: expected %d samples, got %d", c.frameSize, len(pcm))
	}

	buf := make([]byte, maxPacketSize)
	out := make([]byte, 0, maxPacketSize)

	for off := 0; off < len(pcm); off += c.subframe {
		n, err := c.encoder.EncodeFloat32(pcm[off:off+c.subframe], buf)
		if err != nil {
			return nil, fmt.Errorf("codec: encode: %w", err)
		}
		out = binary.BigEndian.AppendUint16(out, uint16(n))
		out = append(out, buf[:n]...)
	}
	return out, nil
}

// Decode expands a packet sequence back into samples.
func (c *OpusCodec) Decode(packet []byte) ([]float32, error) {
	if c.closed {
		return nil, ErrClosed
	}

	out := make([]float32, 0, c.frameSize)
	buf := make([]float32, c.subframe)

	for len(packet) > 0 {
		if len(packet) < 2 {
			return nil, fmt.Errorf("codec: truncated packet header")
		}
		size := int(binary.BigEndian.Uint16(packet))
		packet = packet[2:]
		if size > len(packet) {
			return nil, fmt.Errorf("codec: packet length %d exceeds remaining %d", size, len(packet))
		}

		n, err := c.decoder.DecodeFloat32(packet[:size], buf)
		if err != nil {
			return nil, fmt.Errorf("codec: decode: %w", err)
		}
		out = append(out, buf[:n]...)
		packet = packet[size:]
	}
	return out, nil
}

// Close releases the codec. Safe to call twice; the encoder and decoder
// states stay referenced so an in-flight Encode/Decode cannot dereference
// nil, it just finds closed set on its next call.
func (c *OpusCodec) Close() error {
	c.closed = true
	return nil
}

var _ Codec = (*OpusCodec)(nil)
