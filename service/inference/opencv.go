package inference

import (
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

type opencvService struct {
	// WARNING: gocv.Net is not thread-safe, every Run holds mu
	mu  sync.Mutex
	net gocv.Net
}

// NewOpenCV loads the configured ONNX model through the OpenCV DNN module.
func NewOpenCV(cfgSvc config.IService) (IService, error) {
	modelPath := cfgSvc.GetModelPath()
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, xerrors.Errorf("no model exists at %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, xerrors.Errorf("error reading model %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting target: %w", err)
	}

	lgr.Logger.Info("model loaded",
		slog.String("engine", "opencv"),
		slog.String("model", modelPath),
		slog.String("openCV", gocv.Version()),
	)

	return &opencvService{net: net}, nil
}

func (svc *opencvService) Run(inputs map[string]Tensor) ([]Tensor, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	var blobs []gocv.Mat
	defer func() {
		for _, b := range blobs {
			b.Close()
		}
	}()
	for name, in := range inputs {
		sizes := make([]int, len(in.Shape))
		for i, d := range in.Shape {
			sizes[i] = int(d)
		}
		blob := gocv.NewMatWithSizes(sizes, gocv.MatTypeCV32F)
		blobs = append(blobs, blob)
		dst, err := blob.DataPtrFloat32()
		if err != nil {
			return nil, xerrors.Errorf("input blob %q: %w", name, err)
		}
		copy(dst, in.Data)
		svc.net.SetInput(blob, name)
	}

	output := svc.net.Forward("")
	defer output.Close()
	if output.Empty() {
		return nil, xerrors.New("empty DNN output")
	}

	dims := output.Size()
	shape := make([]int64, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, xerrors.Errorf("read DNN output: %w", err)
	}

	return []Tensor{{
		Shape: shape,
		Data:  append([]float32(nil), data...),
	}}, nil
}

func (svc *opencvService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.net.Close()
}
