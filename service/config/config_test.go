package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewEnvDefaults(t *testing.T) {
	for _, key := range []string{"PY_PORT", "PORT", "MODEL_PATH", "ENGINE", "INPUT_SIZE", "MAX_MESSAGE_BYTES"} {
		t.Setenv(key, "")
	}

	svc, err := NewEnv()
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	if svc.GetPort() != 7000 {
		t.Errorf("port: got %d, want 7000", svc.GetPort())
	}
	if svc.GetModelPath() != "/models/yolov5s.onnx" {
		t.Errorf("model path: got %q", svc.GetModelPath())
	}
	if svc.GetMaxMessageBytes() != 10*1024*1024 {
		t.Errorf("max message bytes: got %d", svc.GetMaxMessageBytes())
	}
	if svc.GetInputSize() != 320 || svc.GetInputName() != "images" {
		t.Errorf("input: got %s/%d", svc.GetInputName(), svc.GetInputSize())
	}
	if svc.GetObjectnessThreshold() != 0.3 || svc.GetScoreThreshold() != 0.5 {
		t.Errorf("thresholds: got %v/%v", svc.GetObjectnessThreshold(), svc.GetScoreThreshold())
	}
}

func TestNewEnvOverrides(t *testing.T) {
	t.Setenv("PY_PORT", "7100")
	t.Setenv("PORT", "")
	t.Setenv("MODEL_PATH", "/tmp/m.onnx")
	t.Setenv("ENGINE", "none")

	svc, err := NewEnv()
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	if svc.GetPort() != 7100 {
		t.Errorf("port: got %d, want 7100", svc.GetPort())
	}
	if svc.GetModelPath() != "/tmp/m.onnx" {
		t.Errorf("model path: got %q", svc.GetModelPath())
	}
	if svc.GetEngine() != "none" {
		t.Errorf("engine: got %q", svc.GetEngine())
	}

	t.Setenv("PORT", "8100")
	svc, err = NewEnv()
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	if svc.GetPort() != 8100 {
		t.Errorf("PORT should win over PY_PORT: got %d", svc.GetPort())
	}
}

func TestNewEnvInvalid(t *testing.T) {
	t.Setenv("PORT", "seven")
	if _, err := NewEnv(); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
	t.Setenv("PORT", "70000")
	if _, err := NewEnv(); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := "port: 9000\nengine: opencv\ncodec: std\ninput_size: 640\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	svc, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if svc.GetPort() != 9000 || svc.GetEngine() != "opencv" || svc.GetCodec() != "std" || svc.GetInputSize() != 640 {
		t.Fatalf("unexpected settings: port=%d engine=%s codec=%s size=%d",
			svc.GetPort(), svc.GetEngine(), svc.GetCodec(), svc.GetInputSize())
	}
	if svc.GetModelPath() != "/models/yolov5s.onnx" {
		t.Errorf("unset key should keep default, got %q", svc.GetModelPath())
	}
}

func TestNewFileMissing(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewFileAllKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := `shutdown_seconds: 2
port: 7001
model_path: /srv/models/y5n.onnx
engine: none
onnxruntime_lib: /usr/local/lib/libonnxruntime.so
codec: std
input_name: input0
input_size: 416
max_message_bytes: 2048
objectness_threshold: 0.25
score_threshold: 0.45
detections_log: /var/log/det.jsonl
stats_log: /var/log/stats.jsonl
trace_exporter: stdout
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	svc, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	want := Settings{
		ShutdownSeconds:     2,
		Port:                7001,
		ModelPath:           "/srv/models/y5n.onnx",
		Engine:              "none",
		OnnxRuntimeLib:      "/usr/local/lib/libonnxruntime.so",
		Codec:               "std",
		InputName:           "input0",
		InputSize:           416,
		MaxMessageBytes:     2048,
		ObjectnessThreshold: 0.25,
		ScoreThreshold:      0.45,
		DetectionsLog:       "/var/log/det.jsonl",
		StatsLog:            "/var/log/stats.jsonl",
		TraceExporter:       "stdout",
	}
	if diff := cmp.Diff(want, svc.(*settingsService).s); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}
