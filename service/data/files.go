package data

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/config"
)

// filesDBService appends JSON lines to rotating files. Stats and errors share
// one file, detections get their own since they are far more frequent.
type filesDBService struct {
	mu         sync.Mutex
	stats      io.WriteCloser
	detections io.WriteCloser
}

// NewFilesDB writes to the files named by the config. An empty name disables
// that sink.
func NewFilesDB(cfgSvc config.IService) IService {
	svc := &filesDBService{}
	if name := cfgSvc.GetStatsLog(); name != "" {
		svc.stats = &lumberjack.Logger{
			Filename:   name,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7,    // days
			Compress:   true, // compress old logs
		}
	}
	if name := cfgSvc.GetDetectionsLog(); name != "" {
		svc.detections = &lumberjack.Logger{
			Filename:   name,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     7,    // days
			Compress:   true, // compress old logs
		}
	}
	return svc
}

func (svc *filesDBService) NewError(err interface{}) error {
	entry := map[string]interface{}{
		"time": time.Now().Format(time.RFC3339),
		"kind": "error",
	}
	switch e := err.(type) {
	case model.CustomError:
		entry["error"] = e
		if e.Inner != nil {
			entry["inner"] = e.Inner.Error()
		}
	case error:
		entry["error"] = e.Error()
	default:
		entry["error"] = e
	}
	return svc.write(svc.stats, entry)
}

func (svc *filesDBService) NewSessionStats(stats model.SessionStats) error {
	return svc.write(svc.stats, map[string]interface{}{
		"time":  time.Now().Format(time.RFC3339),
		"kind":  "session",
		"stats": stats,
	})
}

func (svc *filesDBService) NewDetections(record model.DetectionsRecord) error {
	if len(record.Response.Detections) == 0 {
		return nil // skip logging if none
	}
	return svc.write(svc.detections, record)
}

func (svc *filesDBService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	var first error
	for _, w := range []io.WriteCloser{svc.stats, svc.detections} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (svc *filesDBService) write(w io.Writer, v interface{}) error {
	if w == nil {
		return nil
	}
	line, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("marshal record: %w", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if _, err := w.Write(append(line, '\n')); err != nil {
		return xerrors.Errorf("write record: %w", err)
	}
	return nil
}
