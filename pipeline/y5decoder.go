package pipeline

import (
	"math"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/inference"
)

const (
	DefaultObjectnessThreshold = 0.3
	DefaultScoreThreshold      = 0.5

	// cx, cy, w, h, objectness
	y5BoxFields = 5
)

// Y5Decoder turns raw YOLOv5 output rows into detections in normalized
// original-image coordinates. Rows keep their order and overlapping boxes
// are all kept.
type Y5Decoder struct {
	ObjectnessThreshold float32
	ScoreThreshold      float32
	Labels              []string
}

func NewY5Decoder(objectnessThresh, scoreThresh float32) Y5Decoder {
	return Y5Decoder{
		ObjectnessThreshold: objectnessThresh,
		ScoreThreshold:      scoreThresh,
		Labels:              COCOLabels,
	}
}

// DecodeDetections decodes with the default thresholds.
func DecodeDetections(outputs []inference.Tensor, meta model.PreprocessMeta) ([]model.Detection, error) {
	return NewY5Decoder(DefaultObjectnessThreshold, DefaultScoreThreshold).Decode(outputs, meta)
}

// Decode reads the first output tensor, shaped [N, 5+classes] or
// [1, N, 5+classes].
func (d Y5Decoder) Decode(outputs []inference.Tensor, meta model.PreprocessMeta) ([]model.Detection, error) {
	detections := []model.Detection{}
	if len(outputs) == 0 {
		return detections, xerrors.New("model returned no outputs")
	}

	out := outputs[0]
	shape := out.Shape
	if len(shape) == 3 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return detections, xerrors.Errorf("unexpected output shape %v", out.Shape)
	}
	rows, cols := int(shape[0]), int(shape[1])
	if cols <= y5BoxFields {
		return detections, xerrors.Errorf("unexpected output shape %v", out.Shape)
	}
	if need := out.Elements(); int64(len(out.Data)) < need {
		return detections, xerrors.Errorf("output has %d values, shape %v needs %d", len(out.Data), out.Shape, need)
	}

	for i := 0; i < rows; i++ {
		row := out.Data[i*cols : (i+1)*cols]
		if det, ok := d.decodeRow(row, meta); ok {
			detections = append(detections, det)
		}
	}
	return detections, nil
}

func (d Y5Decoder) decodeRow(row []float32, meta model.PreprocessMeta) (model.Detection, bool) {
	objectConfidence := row[4] // objectness
	if objectConfidence < d.ObjectnessThreshold {
		return model.Detection{}, false
	}

	classScores := row[y5BoxFields:]
	classID := 0
	classConfidence := classScores[0]
	for j, score := range classScores {
		if score > classConfidence {
			classConfidence = score
			classID = j
		}
	}

	finalConf := objectConfidence * classConfidence
	// NaN passes every "<" test, so non-finite scores are rejected explicitly
	if finalConf < d.ScoreThreshold || math.IsNaN(float64(finalConf)) || math.IsInf(float64(finalConf), 0) {
		return model.Detection{}, false
	}

	cx, cy := float64(row[0]), float64(row[1])
	w, h := float64(row[2]), float64(row[3])
	x0, y0 := float64(meta.X0), float64(meta.Y0)

	xmin := (cx - w/2 - x0) / meta.Scale
	ymin := (cy - h/2 - y0) / meta.Scale
	xmax := (cx + w/2 - x0) / meta.Scale
	ymax := (cy + h/2 - y0) / meta.Scale

	return model.Detection{
		Label: d.label(classID),
		Score: float64(finalConf),
		XMin:  clampUnit(xmin / float64(meta.OrigW)),
		YMin:  clampUnit(ymin / float64(meta.OrigH)),
		XMax:  clampUnit(xmax / float64(meta.OrigW)),
		YMax:  clampUnit(ymax / float64(meta.OrigH)),
	}, true
}

func (d Y5Decoder) label(classID int) string {
	if classID >= 0 && classID < len(d.Labels) {
		return d.Labels[classID]
	}
	return strconv.Itoa(classID)
}

// clampUnit maps NaN to 1, as min(1, NaN) does in the reference pipeline.
func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// COCOLabels are the 80 COCO category names in YOLOv5 class-index order.
var COCOLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
