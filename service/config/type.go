package config

type IService interface {
	GetModeMaxShutdownTime() int
	GetPort() int
	GetModelPath() string
	GetEngine() string
	GetOnnxRuntimeLib() string
	GetCodec() string
	GetInputName() string
	GetInputSize() int
	GetMaxMessageBytes() int64
	GetObjectnessThreshold() float32
	GetScoreThreshold() float32
	GetDetectionsLog() string
	GetStatsLog() string
	GetTraceExporter() string
}

// Settings is the full configuration surface. Field names double as YAML
// keys for NewFile.
type Settings struct {
	ShutdownSeconds     int     `yaml:"shutdown_seconds"`
	Port                int     `yaml:"port"`
	ModelPath           string  `yaml:"model_path"`
	Engine              string  `yaml:"engine"`
	OnnxRuntimeLib      string  `yaml:"onnxruntime_lib"`
	Codec               string  `yaml:"codec"`
	InputName           string  `yaml:"input_name"`
	InputSize           int     `yaml:"input_size"`
	MaxMessageBytes     int64   `yaml:"max_message_bytes"`
	ObjectnessThreshold float32 `yaml:"objectness_threshold"`
	ScoreThreshold      float32 `yaml:"score_threshold"`
	DetectionsLog       string  `yaml:"detections_log"`
	StatsLog            string  `yaml:"stats_log"`
	TraceExporter       string  `yaml:"trace_exporter"`
}

// Defaults mirror the reference deployment.
func Defaults() Settings {
	return Settings{
		ShutdownSeconds:     5,
		Port:                7000,
		ModelPath:           "/models/yolov5s.onnx",
		Engine:              "onnx",
		Codec:               "opencv",
		InputName:           "images",
		InputSize:           320,
		MaxMessageBytes:     10 * 1024 * 1024,
		ObjectnessThreshold: 0.3,
		ScoreThreshold:      0.5,
	}
}

type settingsService struct {
	s Settings
}

// NewHardCoded serves the given settings as-is.
func NewHardCoded(s Settings) IService {
	return &settingsService{s: s}
}

func (svc *settingsService) GetModeMaxShutdownTime() int     { return svc.s.ShutdownSeconds }
func (svc *settingsService) GetPort() int                    { return svc.s.Port }
func (svc *settingsService) GetModelPath() string            { return svc.s.ModelPath }
func (svc *settingsService) GetEngine() string               { return svc.s.Engine }
func (svc *settingsService) GetOnnxRuntimeLib() string       { return svc.s.OnnxRuntimeLib }
func (svc *settingsService) GetCodec() string                { return svc.s.Codec }
func (svc *settingsService) GetInputName() string            { return svc.s.InputName }
func (svc *settingsService) GetInputSize() int               { return svc.s.InputSize }
func (svc *settingsService) GetMaxMessageBytes() int64       { return svc.s.MaxMessageBytes }
func (svc *settingsService) GetObjectnessThreshold() float32 { return svc.s.ObjectnessThreshold }
func (svc *settingsService) GetScoreThreshold() float32      { return svc.s.ScoreThreshold }
func (svc *settingsService) GetDetectionsLog() string        { return svc.s.DetectionsLog }
func (svc *settingsService) GetStatsLog() string             { return svc.s.StatsLog }
func (svc *settingsService) GetTraceExporter() string        { return svc.s.TraceExporter }
