package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Нейтральные значения при недостатке данных
const (
	defaultBreathsPerMinute = 15.0
	defaultConsistency      = 0.75
	minCyclesForRate        = 2
	minCyclesForConsistency = 3
	aggregationCycleWindow  = 10
)

// metricsAggregator выводит сводку ритма из текущих буферов истории.
// Чистое вычисление без побочных эффектов: два вызова подряд без новых
// сэмплов дают идентичный результат.
type metricsAggregator struct {
	thresholds Thresholds
}

func newMetricsAggregator(t Thresholds) *metricsAggregator {
	return &metricsAggregator{thresholds: t}
}

// aggregate пересчитывает метрики из последних циклов и сэмплов
func (a *metricsAggregator) aggregate(samples []BreathingSample, cycles []Cycle, baseline float64, phase Phase, tsMS int64) *RhythmMetrics {
	window := samples
	if len(window) > a.thresholds.PeakWindow {
		window = window[len(window)-a.thresholds.PeakWindow:]
	}

	recent := cycles
	if len(recent) > aggregationCycleWindow {
		recent = recent[len(recent)-aggregationCycleWindow:]
	}

	metrics := &RhythmMetrics{
		CurrentPhase:      phase,
		BreathsPerMinute:  a.breathsPerMinute(recent),
		RhythmConsistency: a.rhythmConsistency(recent),
		DepthVariation:    depthVariation(window),
		MovementLevel:     a.movementLevel(window, baseline),
		PostureScore:      meanPosture(window),
		Cycles:            append([]Cycle(nil), recent...),
		Confidence:        meanConfidence(window),
		Calibrated:        true,
		TimestampMS:       tsMS,
	}
	metrics.Anomalies = a.anomalies(window, recent, baseline)

	return metrics
}

// breathsPerMinute - количество принятых циклов в окне, приведенное к минуте
func (a *metricsAggregator) breathsPerMinute(cycles []Cycle) float64 {
	if len(cycles) < minCyclesForRate {
		return defaultBreathsPerMinute
	}

	spanMS := cycles[len(cycles)-1].EndMS - cycles[0].StartMS
	if spanMS <= 0 {
		return defaultBreathsPerMinute
	}

	return float64(len(cycles)) / (float64(spanMS) / 60000.0)
}

// rhythmConsistency - обратный коэффициент вариации длительностей циклов
func (a *metricsAggregator) rhythmConsistency(cycles []Cycle) float64 {
	if len(cycles) < minCyclesForConsistency {
		return defaultConsistency
	}

	durations := make([]float64, len(cycles))
	for i, c := range cycles {
		durations[i] = float64(c.DurationMS)
	}

	mean := stat.Mean(durations, nil)
	if mean < 1e-9 {
		return 0
	}

	cov := stat.StdDev(durations, nil) / mean
	return math.Max(0, 1-cov)
}

// anomalies применяет правила на основе сигнала. Уверенность сэмплов
// в правилах не участвует - низкая уверенность деградирует метрику
// confidence, но сама по себе аномалией не является.
func (a *metricsAggregator) anomalies(samples []BreathingSample, cycles []Cycle, baseline float64) []string {
	var flags []string

	if irregularRhythm(cycles) {
		flags = append(flags, AnomalyIrregularRhythm)
	}

	depth := depthVariation(samples)
	if depth > 1e-9 && meanExpansion(samples, baseline) < a.thresholds.ShallowExpansionFloor {
		flags = append(flags, AnomalyShallowBreathing)
	}

	if meanMovement(samples, baseline) > a.thresholds.MovementCeiling {
		flags = append(flags, AnomalyExcessiveMovement)
	}

	return flags
}

// irregularRhythm: хотя бы один цикл отклоняется от средней длительности
// больше чем на 50%
func irregularRhythm(cycles []Cycle) bool {
	if len(cycles) < minCyclesForConsistency {
		return false
	}

	var sum float64
	for _, c := range cycles {
		sum += float64(c.DurationMS)
	}
	mean := sum / float64(len(cycles))
	if mean < 1e-9 {
		return false
	}

	for _, c := range cycles {
		if math.Abs(float64(c.DurationMS)-mean)/mean > 0.5 {
			return true
		}
	}
	return false
}

// depthVariation - размах сглаженного сигнала в окне
func depthVariation(samples []BreathingSample) float64 {
	if len(samples) == 0 {
		return 0
	}

	minV := samples[0].Primary
	maxV := samples[0].Primary
	for _, s := range samples[1:] {
		if s.Primary < minV {
			minV = s.Primary
		}
		if s.Primary > maxV {
			maxV = s.Primary
		}
	}
	return maxV - minV
}

// meanExpansion - среднее относительное отклонение сигнала от базовой линии
func meanExpansion(samples []BreathingSample, baseline float64) float64 {
	if len(samples) == 0 || baseline < 1e-9 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += math.Abs(s.Primary-baseline) / baseline
	}
	return sum / float64(len(samples))
}

// meanMovement - средний межкадровый скачок сырого сигнала относительно
// базовой линии; грубая оценка движения плеч
func meanMovement(samples []BreathingSample, baseline float64) float64 {
	if len(samples) < 2 || baseline < 1e-9 {
		return 0
	}

	var sum float64
	for i := 1; i < len(samples); i++ {
		sum += math.Abs(samples[i].Raw - samples[i-1].Raw)
	}
	return sum / float64(len(samples)-1) / baseline
}

// movementLevel нормирует средний межкадровый скачок к порогу
// чрезмерного движения: 1.0 означает движение на уровне аномалии
func (a *metricsAggregator) movementLevel(samples []BreathingSample, baseline float64) float64 {
	if a.thresholds.MovementCeiling < 1e-9 {
		return 0
	}
	return clamp01(meanMovement(samples, baseline) / a.thresholds.MovementCeiling)
}

func meanPosture(samples []BreathingSample) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += s.Posture
	}
	return sum / float64(len(samples))
}

func meanConfidence(samples []BreathingSample) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += s.Confidence
	}
	return sum / float64(len(samples))
}
