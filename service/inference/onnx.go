package inference

import (
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

var ortInit sync.Once
var ortInitErr error

type onnxService struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewOnnx loads the configured model into an onnxruntime session restricted
// to a single intra-op thread.
func NewOnnx(cfgSvc config.IService) (IService, error) {
	modelPath := cfgSvc.GetModelPath()
	if _, err := os.Stat(modelPath); err != nil {
		return nil, xerrors.Errorf("model %s: %w", modelPath, err)
	}

	ortInit.Do(func() {
		if lib := cfgSvc.GetOnnxRuntimeLib(); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, xerrors.Errorf("initialize onnxruntime: %w", ortInitErr)
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, xerrors.Errorf("query model io: %w", err)
	}
	inputNames := make([]string, len(inputInfo))
	for i, info := range inputInfo {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputInfo))
	for i, info := range outputInfo {
		outputNames[i] = info.Name
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, xerrors.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return nil, xerrors.Errorf("intra-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, xerrors.Errorf("create session: %w", err)
	}

	lgr.Logger.Info("model loaded",
		slog.String("engine", "onnx"),
		slog.String("model", modelPath),
		slog.Any("inputs", inputNames),
		slog.Any("outputs", outputNames),
	)

	return &onnxService{
		session:     session,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

func (svc *onnxService) Run(inputs map[string]Tensor) ([]Tensor, error) {
	values := make([]ort.Value, len(svc.inputNames))
	defer func() {
		for _, v := range values {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	for i, name := range svc.inputNames {
		in, ok := inputs[name]
		if !ok {
			return nil, xerrors.Errorf("missing input tensor %q", name)
		}
		t, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
		if err != nil {
			return nil, xerrors.Errorf("input tensor %q: %w", name, err)
		}
		values[i] = t
	}

	outputs := make([]ort.Value, len(svc.outputNames))
	if err := svc.session.Run(values, outputs); err != nil {
		return nil, xerrors.Errorf("run session: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	result := make([]Tensor, 0, len(outputs))
	for i, o := range outputs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, xerrors.Errorf("output %q is not a float32 tensor", svc.outputNames[i])
		}
		data := t.GetData()
		result = append(result, Tensor{
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), data...),
		})
	}
	return result, nil
}

func (svc *onnxService) Close() error {
	return svc.session.Destroy()
}
