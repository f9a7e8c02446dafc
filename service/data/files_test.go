package data

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/config"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestFilesDB(t *testing.T) {
	dir := t.TempDir()
	s := config.Defaults()
	s.StatsLog = filepath.Join(dir, "stats.log")
	s.DetectionsLog = filepath.Join(dir, "detections.log")
	svc := NewFilesDB(config.NewHardCoded(s))

	if err := svc.NewSessionStats(model.SessionStats{ID: "abc", Messages: 3}); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if err := svc.NewError(model.GenError("server", errors.New("boom"), nil, "read failed")); err != nil {
		t.Fatalf("error: %v", err)
	}
	if err := svc.NewDetections(model.DetectionsRecord{Session: "abc"}); err != nil {
		t.Fatalf("empty detections: %v", err)
	}
	if err := svc.NewDetections(model.DetectionsRecord{
		Session:  "abc",
		Response: model.ResponsePayload{Detections: []model.Detection{{Label: "person", Score: 0.9}}},
	}); err != nil {
		t.Fatalf("detections: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	stats := readLines(t, s.StatsLog)
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats lines, got %d", len(stats))
	}
	if stats[0]["kind"] != "session" || stats[1]["kind"] != "error" {
		t.Fatalf("unexpected kinds: %v, %v", stats[0]["kind"], stats[1]["kind"])
	}
	if stats[1]["inner"] != "boom" {
		t.Fatalf("unexpected inner error: %v", stats[1]["inner"])
	}

	dets := readLines(t, s.DetectionsLog)
	if len(dets) != 1 {
		t.Fatalf("responses without detections are skipped, got %d lines", len(dets))
	}
}

func TestFilesDBDisabled(t *testing.T) {
	svc := NewFilesDB(config.NewHardCoded(config.Defaults()))
	if err := svc.NewSessionStats(model.SessionStats{ID: "abc"}); err != nil {
		t.Fatalf("disabled sink should be a no-op: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
