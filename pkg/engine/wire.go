// Package engine manages the speech-engine leg of a bridged call: the binary
// wire protocol and the WebSocket client with its connection lifecycle.
//
// wire.go implements the engine's message framing. Every message is one type
// byte followed by the payload:
//
//	0x00 Handshake  (no payload)
//	0x01 Audio      (opaque codec packet)
//	0x02 Text       (UTF-8)
//	0x03 Control    (action string)
//	0x04 Metadata   (JSON object)
//	0x05 Error      (UTF-8 description)
//	0x06 Ping       (no payload)
//
// Decoding never fails: malformed input degrades to an Unknown message or a
// nil Metadata payload so a single corrupt frame cannot take down a call.

package engine

import (
	"encoding/json"
)

// MessageType is the engine protocol tag byte.
type MessageType byte

const (
	MessageTypeHandshake MessageType = 0x00
	MessageTypeAudio     MessageType = 0x01
	MessageTypeText      MessageType = 0x02
	MessageTypeControl   MessageType = 0x03
	MessageTypeMetadata  MessageType = 0x04
	MessageTypeError     MessageType = 0x05
	MessageTypePing      MessageType = 0x06

	// MessageTypeUnknown marks a decoded message whose tag byte is not part
	// of the protocol. The original tag is carried in Message.Code.
	MessageTypeUnknown MessageType = 0xFF
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeHandshake:
		return "handshake"
	case MessageTypeAudio:
		return "audio"
	case MessageTypeText:
		return "text"
	case MessageTypeControl:
		return "control"
	case MessageTypeMetadata:
		return "metadata"
	case MessageTypeError:
		return "error"
	case MessageTypePing:
		return "ping"
	default:
		return "unknown"
	}
}

// Message is one decoded engine protocol message. Exactly the fields
// relevant to Type are populated.
type Message struct {
	Type MessageType

	// Audio carries the opaque codec packet for MessageTypeAudio.
	Audio []byte
	// Text carries the payload for MessageTypeText.
	Text string
	// Control carries the action string for MessageTypeControl.
	Control string
	// Metadata carries the parsed JSON payload for MessageTypeMetadata.
	// It is nil when the payload was absent or malformed.
	Metadata json.RawMessage
	// Error carries the description for MessageTypeError.
	Error string
	// Code carries the raw tag byte for MessageTypeUnknown, or -1 when the
	// input was empty.
	Code int
}

// Decode parses one wire message. Empty input yields Unknown with Code -1;
// an unrecognized tag yields Unknown with the tag in Code. Audio and Text
// payload bytes pass through unmodified.
func Decode(data []byte) Message {
	if len(data) == 0 {
		return Message{Type: MessageTypeUnknown, Code: -1}
	}

	payload := data[1:]
	switch MessageType(data[0]) {
	case MessageTypeHandshake:
		return Message{Type: MessageTypeHandshake}
	case MessageTypeAudio:
		audio := make([]byte, len(payload))
		copy(audio, payload)
		return Message{Type: MessageTypeAudio, Audio: audio}
	case MessageTypeText:
		return Message{Type: MessageTypeText, Text: string(payload)}
	case MessageTypeControl:
		return Message{Type: MessageTypeControl, Control: string(payload)}
	case MessageTypeMetadata:
		return Message{Type: MessageTypeMetadata, Metadata: decodeMetadata(payload)}
	case MessageTypeError:
		return Message{Type: MessageTypeError, Error: string(payload)}
	case MessageTypePing:
		return Message{Type: MessageTypePing}
	default:
		return Message{Type: MessageTypeUnknown, Code: int(data[0])}
	}
}

// decodeMetadata validates the JSON payload, returning nil on malformed
// input rather than failing the decode.
func decodeMetadata(payload []byte) json.RawMessage {
	if len(payload) == 0 || !json.Valid(payload) {
		return nil
	}
	meta := make(json.RawMessage, len(payload))
	copy(meta, payload)
	return meta
}

// EncodeAudio frames an opaque codec packet for the wire.
func EncodeAudio(packet []byte) []byte {
	out := make([]byte, 0, len(packet)+1)
	out = append(out, byte(MessageTypeAudio))
	return append(out, packet...)
}

// EncodeText frames a text payload for the wire.
func EncodeText(text string) []byte {
	out := make([]byte, 0, len(text)+1)
	out = append(out, byte(MessageTypeText))
	return append(out, text...)
}

// EncodeControl frames a control action for the wire.
func EncodeControl(action string) []byte {
	out := make([]byte, 0, len(action)+1)
	out = append(out, byte(MessageTypeControl))
	return append(out, action...)
}
