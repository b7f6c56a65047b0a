package detect

// Point представляет нормализованную координату ориентира (landmark)
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Индексы лицевых ориентиров по конвенции MediaPipe Face Mesh
const (
	FaceNoseTip    = 1
	FaceForehead   = 10
	FaceUpperLip   = 13
	FaceLowerLip   = 14
	FaceLeftEye    = 33
	FaceMouthLeft  = 61
	FaceChin       = 152
	FaceRightEye   = 263
	FaceMouthRight = 291

	// FaceMeshLandmarks - полный набор точек лицевой сетки
	FaceMeshLandmarks = 468
)

// Индексы ориентиров тела по конвенции MediaPipe Pose
const (
	PoseNose          = 0
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
	PoseLeftHip       = 23
	PoseRightHip      = 24

	// PoseLandmarks - полный набор точек позы
	PoseLandmarks = 33
)

// LandmarkFrame представляет один кадр от модели распознавания ориентиров.
// Массивы face и pose могут быть пустыми - это деградация качества, а не ошибка.
type LandmarkFrame struct {
	Face        []Point `json:"face,omitempty"`
	Pose        []Point `json:"pose,omitempty"`
	TimestampMS int64   `json:"timestamp_ms"`
}

// BreathingSample представляет одно извлеченное значение дыхательного сигнала
type BreathingSample struct {
	TimestampMS int64   `json:"timestamp_ms"`
	Raw         float64 `json:"raw"`       // Сырой сигнал до сглаживания
	Primary     float64 `json:"primary"`   // Сглаженный сигнал расширения грудной клетки/плеч
	Secondary   float64 `json:"secondary"` // Лицевое напряжение (только advanced)
	Confidence  float64 `json:"confidence"`
	Posture     float64 `json:"posture"` // Оценка осанки по положению носа в кадре
}

// Phase представляет фазу дыхательного цикла
type Phase string

const (
	PhaseInhale     Phase = "inhale"
	PhaseExhale     Phase = "exhale"
	PhaseHold       Phase = "hold"
	PhaseTransition Phase = "transition"
)

// Cycle представляет один завершенный дыхательный цикл,
// ограниченный двумя пиками расширения. После создания не изменяется.
type Cycle struct {
	StartMS        int64    `json:"start_ms"`
	EndMS          int64    `json:"end_ms"`
	ExhaleStartMS  int64    `json:"exhale_start_ms"`
	ExhaleEndMS    int64    `json:"exhale_end_ms"`
	InhaleStartMS  int64    `json:"inhale_start_ms"`
	InhaleEndMS    int64    `json:"inhale_end_ms"`
	DurationMS     int64    `json:"duration_ms"`
	Quality        float64  `json:"quality"`
	Irregularities []string `json:"irregularities,omitempty"`
}

// RhythmMetrics - внешне видимая сводка ритма дыхания.
// Пересчитывается заново при каждом вызове Analyze, не хранится.
type RhythmMetrics struct {
	CurrentPhase      Phase    `json:"current_phase"`
	BreathsPerMinute  float64  `json:"breaths_per_minute"`
	RhythmConsistency float64  `json:"rhythm_consistency"`
	DepthVariation    float64  `json:"depth_variation"`
	MovementLevel     float64  `json:"movement_level"`
	PostureScore      float64  `json:"posture_score"`
	Cycles            []Cycle  `json:"cycles"`
	Anomalies         []string `json:"anomalies,omitempty"`
	Confidence        float64  `json:"confidence"`
	Calibrated        bool     `json:"calibrated"`
	TimestampMS       int64    `json:"timestamp_ms"`
}

// Флаги аномалий, возвращаемые агрегатором метрик
const (
	AnomalyIrregularRhythm   = "irregular_rhythm"
	AnomalyShallowBreathing  = "shallow_breathing"
	AnomalyExcessiveMovement = "excessive_movement"
)

// Status содержит диагностическую информацию о детекторе
type Status struct {
	HistorySize int             `json:"history_size"`
	CycleCount  int             `json:"cycle_count"`
	Level       ProcessingLevel `json:"processing_level"`
	Mobile      bool            `json:"is_mobile"`
	Calibrated  bool            `json:"calibrated"`
	Baseline    float64         `json:"baseline"`
	Thresholds  Thresholds      `json:"thresholds"`
}
