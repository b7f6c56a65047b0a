package detect

// ProcessingLevel определяет режим обработки в зависимости от мощности клиента
type ProcessingLevel string

const (
	LevelBasic    ProcessingLevel = "basic"
	LevelStandard ProcessingLevel = "standard"
	LevelAdvanced ProcessingLevel = "advanced"
)

// Thresholds содержит настраиваемые пороги детектора.
// Значения выводятся из уровня обработки и признака мобильного клиента.
type Thresholds struct {
	// Чувствительность классификатора фаз (относительное отклонение от базовой линии)
	Sensitivity float64 `json:"sensitivity"`

	// Коэффициент экспоненциального сглаживания: больше - сильнее сглаживание
	SmoothingAlpha float64 `json:"smoothing_alpha"`

	// Количество сэмплов для калибровки базовой линии
	CalibrationSamples int `json:"calibration_samples"`

	// Границы длительности допустимого дыхательного цикла
	MinCycleDurationMS int64 `json:"min_cycle_duration_ms"`
	MaxCycleDurationMS int64 `json:"max_cycle_duration_ms"`

	// Минимальное время удержания фазы до фиксации перехода
	PhaseDwellMS int64 `json:"phase_dwell_ms"`

	// Емкости буферов истории
	SampleHistoryCap int `json:"sample_history_cap"`
	CycleHistoryCap  int `json:"cycle_history_cap"`

	// Окно поиска пиков и долин
	PeakWindow int `json:"peak_window"`

	// Пороги аномалий
	ShallowExpansionFloor float64 `json:"shallow_expansion_floor"`
	MovementCeiling       float64 `json:"movement_ceiling"`

	// Подсказка целевого интервала между кадрами (детектор сам не троттлит)
	TargetFrameIntervalMS int64 `json:"target_frame_interval_ms"`
}

// ThresholdsFor возвращает пороги для заданного уровня обработки.
// На мобильных клиентах сглаживание сильнее, чувствительность ниже,
// буферы меньше.
func ThresholdsFor(level ProcessingLevel, mobile bool) Thresholds {
	t := Thresholds{
		Sensitivity:           0.08,
		SmoothingAlpha:        0.3,
		CalibrationSamples:    10,
		MinCycleDurationMS:    2000,
		MaxCycleDurationMS:    20000,
		PhaseDwellMS:          500,
		SampleHistoryCap:      120,
		CycleHistoryCap:       20,
		PeakWindow:            30,
		ShallowExpansionFloor: 0.03,
		MovementCeiling:       0.15,
		TargetFrameIntervalMS: 500,
	}

	switch level {
	case LevelBasic:
		t.Sensitivity = 0.12
		t.SmoothingAlpha = 0.4
		t.SampleHistoryCap = 60
	case LevelAdvanced:
		t.Sensitivity = 0.05
		t.SmoothingAlpha = 0.2
		t.SampleHistoryCap = 180
	}

	if mobile {
		t.SmoothingAlpha += 0.15
		t.Sensitivity += 0.02
		if t.SampleHistoryCap > 60 {
			t.SampleHistoryCap = 60
		}
	}

	return t
}
