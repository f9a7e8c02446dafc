package pipeline

import (
	"fmt"

	"github.com/khaledhikmat/vs-detect/service/codec"
	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/data"
	"github.com/khaledhikmat/vs-detect/service/inference"
)

// ServicesFactory holds the collaborators shared by every session.
// InferenceSvc may be nil when no model is loaded.
type ServicesFactory struct {
	CfgSvc       config.IService
	CodecSvc     codec.IService
	InferenceSvc inference.IService
	DataSvc      data.IService
}

type MessageKind int

const (
	TextMessage MessageKind = iota
	BinaryMessage
)

type State int32

const (
	Idle State = iota
	Receiving
	Decoding
	Preprocessing
	Inferring
	PostProcessing
	Responding
	Closed
)

var stateNames = [...]string{
	Idle:           "idle",
	Receiving:      "receiving",
	Decoding:       "decoding",
	Preprocessing:  "preprocessing",
	Inferring:      "inferring",
	PostProcessing: "postprocessing",
	Responding:     "responding",
	Closed:         "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// DecodeError means the image payload could not be decoded.
type DecodeError struct {
	Inner error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image: %v", e.Inner) }
func (e *DecodeError) Unwrap() error { return e.Inner }

// EngineError means the model invocation or its output was unusable.
type EngineError struct {
	Inner error
}

func (e *EngineError) Error() string { return fmt.Sprintf("inference: %v", e.Inner) }
func (e *EngineError) Unwrap() error { return e.Inner }

// SerializeError means a response could not be rendered as JSON.
type SerializeError struct {
	Inner error
}

func (e *SerializeError) Error() string { return fmt.Sprintf("serialize response: %v", e.Inner) }
func (e *SerializeError) Unwrap() error { return e.Inner }
