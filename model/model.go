package model

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// FrameHeader is the JSON header that precedes the image bytes of an inbound
// frame. Both values are echoed back untouched.
type FrameHeader struct {
	FrameID   json.RawMessage `json:"frame_id"`
	CaptureTS json.RawMessage `json:"capture_ts"`
}

type RawFrame struct {
	Header FrameHeader
	Image  []byte
}

// PreprocessMeta carries what is needed to map canvas coordinates back to
// the original image.
type PreprocessMeta struct {
	X0         int     `json:"x0"`
	Y0         int     `json:"y0"`
	Scale      float64 `json:"scale"`
	CanvasSize int     `json:"canvasSize"`
	OrigW      int     `json:"origW"`
	OrigH      int     `json:"origH"`
}

type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	XMin  float64 `json:"xmin"`
	YMin  float64 `json:"ymin"`
	XMax  float64 `json:"xmax"`
	YMax  float64 `json:"ymax"`
}

type ResponsePayload struct {
	FrameID     json.RawMessage `json:"frame_id"`
	CaptureTS   json.RawMessage `json:"capture_ts"`
	RecvTS      int64           `json:"recv_ts"`
	InferenceTS int64           `json:"inference_ts"`
	Detections  []Detection     `json:"detections"`
}

type SessionStats struct {
	ID              string  `json:"id"`
	Remote          string  `json:"remote"`
	Messages        int     `json:"messages"`
	TextMessages    int     `json:"textMessages"`
	Responses       int     `json:"responses"`
	ProtocolErrors  int     `json:"protocolErrors"`
	DecodeErrors    int     `json:"decodeErrors"`
	EngineErrors    int     `json:"engineErrors"`
	SerializeErrors int     `json:"serializeErrors"`
	Panics          int     `json:"panics"`
	Detections      int     `json:"detections"`
	Uptime          int64   `json:"uptime"`
	AvgServerMillis float64 `json:"avgServerMillis"`
	Timestamp       int64   `json:"timestamp"`
}

type DetectionsRecord struct {
	Session  string          `json:"session"`
	Time     string          `json:"time"`
	Response ResponsePayload `json:"response"`
}
