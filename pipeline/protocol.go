package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/khaledhikmat/vs-detect/model"
)

var headerDelimiter = []byte("\n\n")

type ProtocolErrorKind int

const (
	MissingDelimiter ProtocolErrorKind = iota
	MalformedHeader
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case MissingDelimiter:
		return "missing delimiter"
	case MalformedHeader:
		return "malformed header"
	default:
		return fmt.Sprintf("protocol error %d", int(k))
	}
}

type ProtocolError struct {
	Kind  ProtocolErrorKind
	Inner error
}

func (e *ProtocolError) Error() string {
	if e.Inner == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Inner)
}

func (e *ProtocolError) Unwrap() error {
	return e.Inner
}

// ParseFrame splits a binary message at the first "\n\n" into its JSON header
// and the opaque image payload that follows.
func ParseFrame(message []byte) (model.RawFrame, error) {
	sp := bytes.Index(message, headerDelimiter)
	if sp == -1 {
		return model.RawFrame{}, &ProtocolError{Kind: MissingDelimiter}
	}

	head := message[:sp]
	if !utf8.Valid(head) {
		return model.RawFrame{}, &ProtocolError{Kind: MalformedHeader, Inner: fmt.Errorf("header is not valid UTF-8")}
	}

	// Decoding into a map first rejects arrays, strings and null.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(head, &fields); err != nil {
		return model.RawFrame{}, &ProtocolError{Kind: MalformedHeader, Inner: err}
	}
	if fields == nil {
		return model.RawFrame{}, &ProtocolError{Kind: MalformedHeader, Inner: fmt.Errorf("header is not an object")}
	}

	return model.RawFrame{
		Header: model.FrameHeader{
			FrameID:   passThrough(fields["frame_id"]),
			CaptureTS: passThrough(fields["capture_ts"]),
		},
		Image: message[sp+len(headerDelimiter):],
	}, nil
}

// ComposeFrame builds a binary frame message from a header and image bytes.
// ParseFrame recovers both.
func ComposeFrame(header model.FrameHeader, image []byte) ([]byte, error) {
	header.FrameID = passThrough(header.FrameID)
	header.CaptureTS = passThrough(header.CaptureTS)
	head, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}

	message := make([]byte, 0, len(head)+len(headerDelimiter)+len(image))
	message = append(message, head...)
	message = append(message, headerDelimiter...)
	return append(message, image...), nil
}

// SerializeResponse renders the outbound JSON message.
func SerializeResponse(payload model.ResponsePayload) ([]byte, error) {
	payload.FrameID = passThrough(payload.FrameID)
	payload.CaptureTS = passThrough(payload.CaptureTS)
	if payload.Detections == nil {
		payload.Detections = []model.Detection{}
	}
	return json.Marshal(payload)
}

func passThrough(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}
