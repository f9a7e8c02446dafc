package tracing

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// IService owns the process-wide tracer provider.
type IService interface {
	// Shutdown flushes pending spans and stops the exporter.
	Shutdown(ctx context.Context) error
}

// New installs the configured tracer provider as the otel global. With no
// exporter configured the global no-op provider stays in place.
func New(cfgSvc config.IService, w io.Writer) (IService, error) {
	switch cfgSvc.GetTraceExporter() {
	case "", ExporterNone:
		return noopService{}, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, xerrors.Errorf("stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(tp)
		lgr.Logger.Info("tracing enabled", slog.String("exporter", ExporterStdout))
		return &sdkService{tp: tp}, nil
	default:
		lgr.Logger.Error("invalid trace exporter", slog.String("exporter", cfgSvc.GetTraceExporter()))
		return nil, xerrors.Errorf("invalid trace exporter %q", cfgSvc.GetTraceExporter())
	}
}

type sdkService struct {
	tp *sdktrace.TracerProvider
}

func (svc *sdkService) Shutdown(ctx context.Context) error {
	return svc.tp.Shutdown(ctx)
}

type noopService struct{}

func (noopService) Shutdown(context.Context) error { return nil }
