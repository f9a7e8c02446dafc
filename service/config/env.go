package config

import (
	"os"
	"strconv"

	"golang.org/x/xerrors"
)

// NewEnv reads settings from the environment on top of Defaults. PY_PORT is
// honoured for compatibility with existing deployments; PORT wins if both are
// set.
func NewEnv() (IService, error) {
	s := Defaults()
	var err error

	if s.Port, err = envInt("PY_PORT", s.Port); err != nil {
		return nil, err
	}
	if s.Port, err = envInt("PORT", s.Port); err != nil {
		return nil, err
	}
	if s.ShutdownSeconds, err = envInt("SHUTDOWN_SECONDS", s.ShutdownSeconds); err != nil {
		return nil, err
	}
	if s.InputSize, err = envInt("INPUT_SIZE", s.InputSize); err != nil {
		return nil, err
	}
	maxBytes, err := envInt("MAX_MESSAGE_BYTES", int(s.MaxMessageBytes))
	if err != nil {
		return nil, err
	}
	s.MaxMessageBytes = int64(maxBytes)

	s.ModelPath = envString("MODEL_PATH", s.ModelPath)
	s.Engine = envString("ENGINE", s.Engine)
	s.OnnxRuntimeLib = envString("ONNXRUNTIME_LIB", s.OnnxRuntimeLib)
	s.Codec = envString("CODEC", s.Codec)
	s.DetectionsLog = envString("DETECTIONS_LOG", s.DetectionsLog)
	s.StatsLog = envString("STATS_LOG", s.StatsLog)
	s.TraceExporter = envString("TRACE_EXPORTER", s.TraceExporter)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return NewHardCoded(s), nil
}

// Validate rejects settings the pipeline cannot run with.
func (s Settings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return xerrors.Errorf("invalid port %d", s.Port)
	}
	if s.InputSize < 1 {
		return xerrors.Errorf("invalid input size %d", s.InputSize)
	}
	if s.MaxMessageBytes < 1 {
		return xerrors.Errorf("invalid max message bytes %d", s.MaxMessageBytes)
	}
	if s.InputName == "" {
		return xerrors.New("input name is required")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", key, err)
	}
	return n, nil
}
