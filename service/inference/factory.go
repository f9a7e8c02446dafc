package inference

import (
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

const (
	EngineOnnx   = "onnx"
	EngineOpenCV = "opencv"
	EngineNone   = "none"
)

// New builds the configured engine. EngineNone yields a nil service, which
// the pipeline treats as "no model loaded".
func New(cfgSvc config.IService) (IService, error) {
	switch cfgSvc.GetEngine() {
	case EngineOnnx, "":
		return NewOnnx(cfgSvc)
	case EngineOpenCV:
		return NewOpenCV(cfgSvc)
	case EngineNone:
		lgr.Logger.Warn("no inference engine configured, responses will carry no detections")
		return nil, nil
	default:
		lgr.Logger.Error("invalid engine", slog.String("engine", cfgSvc.GetEngine()))
		return nil, xerrors.Errorf("invalid engine %q", cfgSvc.GetEngine())
	}
}
