package codec

import (
	"image"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

const (
	CodecOpenCV = "opencv"
	CodecStd    = "std"
)

// IService turns compressed image bytes into pixels.
type IService interface {
	Decode(data []byte) (image.Image, error)
}

func New(cfgSvc config.IService) (IService, error) {
	switch cfgSvc.GetCodec() {
	case CodecOpenCV, "":
		return NewOpenCV(), nil
	case CodecStd:
		return NewStd(), nil
	default:
		lgr.Logger.Error("invalid codec", slog.String("codec", cfgSvc.GetCodec()))
		return nil, xerrors.Errorf("invalid codec %q", cfgSvc.GetCodec())
	}
}
