package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/khaledhikmat/vs-detect/service/config"
)

func settingsWith(exporter string) config.IService {
	s := config.Defaults()
	s.TraceExporter = exporter
	return config.NewHardCoded(s)
}

func TestStdoutExporter(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	svc, err := New(settingsWith(ExporterStdout), &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, span := otel.Tracer("vs-detect-test").Start(context.Background(), "frame")
	if !span.IsRecording() {
		t.Fatal("span from the installed provider should be recording")
	}
	span.End()

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), `"Name":"frame"`) {
		t.Fatalf("exported span missing: %q", buf.String())
	}
}

func TestNoExporter(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		svc, err := New(settingsWith(exporter), &bytes.Buffer{})
		if err != nil {
			t.Fatalf("New(%q): %v", exporter, err)
		}
		if err := svc.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown(%q): %v", exporter, err)
		}
	}
}

func TestInvalidExporter(t *testing.T) {
	if _, err := New(settingsWith("zipkin"), &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error for an unknown exporter")
	}
}
