// frame_buffer.go implements a bounded FIFO sample accumulator.
//
// The two legs of a bridged call disagree on chunking: the telephony side
// delivers 20ms chunks (160 samples at 8kHz) while the engine consumes fixed
// frames (1920 samples at 24kHz). A FrameBuffer absorbs the mismatch by
// accumulating pushed samples and releasing them in exact frame-sized units.
//
// Capacity is bounded at frameSize × maxFrames. When a push would exceed it,
// the oldest samples are dropped: under sustained overload bounded memory
// wins over lossless delivery.

package audio

// FrameBuffer accumulates samples and releases them as fixed-size frames.
// A buffer is owned by exactly one session and is not synchronized.
type FrameBuffer struct {
	data      []float32
	frameSize int
	maxFrames int
	capacity  int
}

// NewFrameBuffer creates a buffer releasing frames of frameSize samples and
// holding at most maxFrames frames worth of data.
func NewFrameBuffer(frameSize, maxFrames int) *FrameBuffer {
	return &FrameBuffer{
		data:      make([]float32, 0, frameSize*maxFrames),
		frameSize: frameSize,
		maxFrames: maxFrames,
		capacity:  frameSize * maxFrames,
	}
}

// Push appends samples to the buffer. If the buffer would exceed its
// capacity, the oldest excess samples are dropped first.
func (fb *FrameBuffer) Push(samples []float32) {
	fb.data = append(fb.data, samples...)
	if excess := len(fb.data) - fb.capacity; excess > 0 {
		n := copy(fb.data, fb.data[excess:])
		fb.data = fb.data[:n]
	}
}

// HasFrame reports whether a complete frame is available.
func (fb *FrameBuffer) HasFrame() bool {
	return len(fb.data) >= fb.frameSize
}

// ReadFrame consumes and returns the oldest complete frame, or nil if fewer
// than frameSize samples are buffered.
func (fb *FrameBuffer) ReadFrame() []float32 {
	if len(fb.data) < fb.frameSize {
		return nil
	}
	frame := make([]float32, fb.frameSize)
	copy(frame, fb.data[:fb.frameSize])
	n := copy(fb.data, fb.data[fb.frameSize:])
	fb.data = fb.data[:n]
	return frame
}

// PeekFrame returns a copy of the oldest complete frame without consuming
// it, or nil if none is available.
func (fb *FrameBuffer) PeekFrame() []float32 {
	if len(fb.data) < fb.frameSize {
		return nil
	}
	frame := make([]float32, fb.frameSize)
	copy(frame, fb.data[:fb.frameSize])
	return frame
}

// Len returns the number of buffered samples.
func (fb *FrameBuffer) Len() int {
	return len(fb.data)
}

// FrameCount returns the number of complete frames currently available.
func (fb *FrameBuffer) FrameCount() int {
	return len(fb.data) / fb.frameSize
}

// FrameSize returns the configured frame size in samples.
func (fb *FrameBuffer) FrameSize() int {
	return fb.frameSize
}

// Capacity returns the maximum number of buffered samples.
func (fb *FrameBuffer) Capacity() int {
	return fb.capacity
}

// Clear discards all buffered samples.
func (fb *FrameBuffer) Clear() {
	fb.data = fb.data[:0]
}
