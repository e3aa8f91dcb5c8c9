// Package telephony implements the provider leg of a bridged call: the
// Twilio Media Streams JSON protocol carried over a duplex WebSocket.
//
// Inbound events are connected, start, media, stop, dtmf and mark; outbound
// messages are media (base64 μ-law audio), mark and clear. Audio on this leg
// is always μ-law, 8kHz, mono.
//
// Reference: https://www.twilio.com/docs/voice/media-streams

package telephony

// Media stream audio format constants.
const (
	SampleRate = 8000 // μ-law audio on this leg is always 8kHz
	Channels   = 1    // Mono only
)

// StreamMessage is one Media Streams WebSocket message. The Event field
// discriminates which payload pointer is populated.
type StreamMessage struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Protocol       string        `json:"protocol,omitempty"`
	Version        string        `json:"version,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	DTMF           *DTMFPayload  `json:"dtmf,omitempty"`
}

// StartPayload contains stream initialization data.
type StartPayload struct {
	AccountSid       string            `json:"accountSid"`
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the audio format of a stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`   // "audio/x-mulaw"
	SampleRate int    `json:"sampleRate"` // 8000
	Channels   int    `json:"channels"`   // 1
}

// MediaPayload contains one chunk of base64-encoded μ-law audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"` // "inbound" or "outbound"
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // ms since stream start
	Payload   string `json:"payload"`
}

// StopPayload contains stream termination data.
type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// MarkPayload names a playback synchronization marker.
type MarkPayload struct {
	Name string `json:"name"`
}

// DTMFPayload contains a pressed digit.
type DTMFPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}
