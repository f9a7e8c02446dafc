package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/inference"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

const tracerName = "github.com/khaledhikmat/vs-detect/pipeline"

// Sender delivers one serialized response to the peer.
type Sender func(payload []byte) error

// Session is the per-connection pipeline. Messages must be handed to it one
// at a time, in arrival order.
type Session struct {
	ID     string
	Remote string

	svcs      ServicesFactory
	decoder   Y5Decoder
	inputName string
	inputSize int
	tracer    trace.Tracer
	now       func() time.Time

	state atomic.Int32

	mu           sync.Mutex
	stats        model.SessionStats
	startTime    time.Time
	serverMillis int64
}

func NewSession(id, remote string, svcs ServicesFactory) *Session {
	s := &Session{
		ID:        id,
		Remote:    remote,
		svcs:      svcs,
		decoder:   NewY5Decoder(svcs.CfgSvc.GetObjectnessThreshold(), svcs.CfgSvc.GetScoreThreshold()),
		inputName: svcs.CfgSvc.GetInputName(),
		inputSize: svcs.CfgSvc.GetInputSize(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		startTime: time.Now(),
	}
	s.stats.ID = id
	s.stats.Remote = remote
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Handle runs one inbound message. Text messages and messages that fail
// inside the pipeline produce no response. Only a failed send is returned,
// it means the connection is gone.
func (s *Session) Handle(ctx context.Context, kind MessageKind, message []byte, send Sender) error {
	if s.State() == Closed {
		return xerrors.New("session closed")
	}

	s.mu.Lock()
	s.stats.Messages++
	if kind != BinaryMessage {
		s.stats.TextMessages++
	}
	s.mu.Unlock()

	if kind != BinaryMessage {
		return nil
	}

	resp, err := s.Process(ctx, message)
	if err != nil {
		s.drop(err)
		s.setState(Idle)
		return nil
	}

	s.setState(Responding)
	payload, err := SerializeResponse(*resp)
	if err != nil {
		s.drop(&SerializeError{Inner: err})
		s.setState(Idle)
		return nil
	}
	if err := send(payload); err != nil {
		s.setState(Idle)
		return xerrors.Errorf("send response: %w", err)
	}

	s.mu.Lock()
	s.stats.Responses++
	s.stats.Detections += len(resp.Detections)
	s.serverMillis += resp.InferenceTS - resp.RecvTS
	s.mu.Unlock()

	if s.svcs.DataSvc != nil {
		err := s.svcs.DataSvc.NewDetections(model.DetectionsRecord{
			Session:  s.ID,
			Time:     s.now().Format(time.RFC3339),
			Response: *resp,
		})
		if err != nil {
			lgr.Logger.Warn("failed to store detections",
				slog.String("session", s.ID),
				slog.Any("error", err),
			)
		}
	}

	s.setState(Idle)
	return nil
}

// Process takes a binary message from arrival to a response payload.
func (s *Session) Process(ctx context.Context, message []byte) (resp *model.ResponsePayload, err error) {
	s.setState(Receiving)
	recvTS := s.now().UnixMilli()

	ctx, span := s.tracer.Start(ctx, "frame",
		trace.WithAttributes(
			attribute.String("session", s.ID),
			attribute.Int("bytes", len(message)),
		))
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &panicError{state: s.State(), value: r}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	frame, err := ParseFrame(message)
	if err != nil {
		return nil, err
	}

	s.setState(Decoding)
	img, err := stage(ctx, s.tracer, "decode", func() (image.Image, error) {
		return s.svcs.CodecSvc.Decode(frame.Image)
	})
	if err != nil {
		return nil, &DecodeError{Inner: err}
	}

	s.setState(Preprocessing)
	tensor, meta := Letterbox(img, s.inputSize)

	resp = &model.ResponsePayload{
		FrameID:     frame.Header.FrameID,
		CaptureTS:   frame.Header.CaptureTS,
		RecvTS:      recvTS,
		InferenceTS: s.now().UnixMilli(),
		Detections:  []model.Detection{},
	}
	if s.svcs.InferenceSvc == nil {
		return resp, nil
	}

	s.setState(Inferring)
	out, err := stage(ctx, s.tracer, "infer", func() ([]inference.Tensor, error) {
		return s.svcs.InferenceSvc.Run(map[string]inference.Tensor{s.inputName: tensor})
	})
	resp.InferenceTS = s.now().UnixMilli()
	if err != nil {
		return nil, &EngineError{Inner: err}
	}

	s.setState(PostProcessing)
	detections, err := s.decoder.Decode(out, meta)
	if err != nil {
		return nil, &EngineError{Inner: err}
	}
	resp.Detections = detections
	return resp, nil
}

// Close marks the session closed and returns its final stats.
func (s *Session) Close() model.SessionStats {
	s.setState(Closed)
	return s.Stats()
}

func (s *Session) Stats() model.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Uptime = int64(time.Since(s.startTime).Seconds())
	stats.Timestamp = time.Now().Unix()
	if stats.Responses > 0 {
		stats.AvgServerMillis = float64(s.serverMillis) / float64(stats.Responses)
	}
	return stats
}

func stage[T any](ctx context.Context, tracer trace.Tracer, name string, fn func() (T, error)) (T, error) {
	_, span := tracer.Start(ctx, name)
	defer span.End()
	v, err := fn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

func (s *Session) drop(err error) {
	var protoErr *ProtocolError
	var decodeErr *DecodeError
	var engineErr *EngineError
	var serializeErr *SerializeError
	var pErr *panicError

	s.mu.Lock()
	switch {
	case errors.As(err, &protoErr):
		s.stats.ProtocolErrors++
	case errors.As(err, &decodeErr):
		s.stats.DecodeErrors++
	case errors.As(err, &engineErr):
		s.stats.EngineErrors++
	case errors.As(err, &serializeErr):
		s.stats.SerializeErrors++
	case errors.As(err, &pErr):
		s.stats.Panics++
	}
	s.mu.Unlock()

	level := slog.LevelDebug
	if engineErr != nil || serializeErr != nil || pErr != nil {
		level = slog.LevelWarn
	}
	lgr.Logger.Log(context.Background(), level, "frame dropped",
		slog.String("session", s.ID),
		slog.Any("error", err),
	)
}

type panicError struct {
	state State
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("recovered panic while %s: %v", e.state, e.value)
}
