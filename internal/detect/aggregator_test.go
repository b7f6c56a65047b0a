package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func flatSamples(n int, value, conf float64, stepMS int64) []BreathingSample {
	samples := make([]BreathingSample, n)
	for i := range samples {
		samples[i] = BreathingSample{
			TimestampMS: int64(i) * stepMS,
			Raw:         value,
			Primary:     value,
			Confidence:  conf,
		}
	}
	return samples
}

func regularCycles(n int, durationMS int64) []Cycle {
	cycles := make([]Cycle, n)
	var start int64
	for i := range cycles {
		cycles[i] = Cycle{
			StartMS:    start,
			EndMS:      start + durationMS,
			DurationMS: durationMS,
			Quality:    0.8,
		}
		start += durationMS
	}
	return cycles
}

func TestAggregator_Idempotence(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))
	samples := flatSamples(30, 0.12, 0.8, 500)
	cycles := regularCycles(5, 4000)

	first := a.aggregate(samples, cycles, 0.10, PhaseInhale, 15000)
	second := a.aggregate(samples, cycles, 0.10, PhaseInhale, 15000)

	assert.Equal(t, first, second)
}

func TestAggregator_BreathsPerMinute(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))
	samples := flatSamples(30, 0.12, 0.8, 500)

	// Недостаточно циклов: нейтральное значение покоя
	m := a.aggregate(samples, nil, 0.10, PhaseHold, 15000)
	assert.Equal(t, defaultBreathsPerMinute, m.BreathsPerMinute)

	m = a.aggregate(samples, regularCycles(1, 4000), 0.10, PhaseHold, 15000)
	assert.Equal(t, defaultBreathsPerMinute, m.BreathsPerMinute)

	// 5 циклов по 4с = 20с окна, 15 вдохов в минуту
	m = a.aggregate(samples, regularCycles(5, 4000), 0.10, PhaseHold, 15000)
	assert.InDelta(t, 15.0, m.BreathsPerMinute, 1e-9)

	// 6 циклов по 10с: медленное дыхание 6 в минуту
	m = a.aggregate(samples, regularCycles(6, 10000), 0.10, PhaseHold, 15000)
	assert.InDelta(t, 6.0, m.BreathsPerMinute, 1e-9)
}

func TestAggregator_RhythmConsistency(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))
	samples := flatSamples(30, 0.12, 0.8, 500)

	// Меньше 3 циклов: нейтральное значение
	m := a.aggregate(samples, regularCycles(2, 4000), 0.10, PhaseHold, 15000)
	assert.Equal(t, defaultConsistency, m.RhythmConsistency)

	// Идеально регулярный ритм
	m = a.aggregate(samples, regularCycles(6, 4000), 0.10, PhaseHold, 15000)
	assert.InDelta(t, 1.0, m.RhythmConsistency, 1e-9)

	// Сильно рваный ритм заметно снижает согласованность
	ragged := []Cycle{
		{StartMS: 0, EndMS: 2000, DurationMS: 2000},
		{StartMS: 2000, EndMS: 14000, DurationMS: 12000},
		{StartMS: 14000, EndMS: 16500, DurationMS: 2500},
		{StartMS: 16500, EndMS: 35000, DurationMS: 18500},
	}
	m = a.aggregate(samples, ragged, 0.10, PhaseHold, 35000)
	assert.Less(t, m.RhythmConsistency, 0.5)
}

func TestAggregator_IrregularRhythmAnomaly(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))
	samples := flatSamples(30, 0.12, 0.8, 500)

	// Один цикл отклоняется от среднего более чем на 50%
	cycles := append(regularCycles(4, 4000), Cycle{StartMS: 16000, EndMS: 28000, DurationMS: 12000})
	m := a.aggregate(samples, cycles, 0.10, PhaseHold, 28000)
	assert.Contains(t, m.Anomalies, AnomalyIrregularRhythm)

	// Регулярный ритм аномалий не дает
	m = a.aggregate(samples, regularCycles(5, 4000), 0.10, PhaseHold, 20000)
	assert.NotContains(t, m.Anomalies, AnomalyIrregularRhythm)
}

func TestAggregator_ShallowBreathingAnomaly(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))

	// Еле заметные колебания вокруг базовой линии
	samples := flatSamples(30, 0.10, 0.8, 500)
	for i := range samples {
		if i%2 == 0 {
			samples[i].Primary = 0.1005
			samples[i].Raw = 0.1005
		}
	}

	m := a.aggregate(samples, nil, 0.10, PhaseHold, 15000)
	assert.Contains(t, m.Anomalies, AnomalyShallowBreathing)

	// Полностью ровный сигнал - это отсутствие дыхательного движения,
	// а не мелкое дыхание: флаг не ставится
	m = a.aggregate(flatSamples(30, 0.10, 0.8, 500), nil, 0.10, PhaseHold, 15000)
	assert.NotContains(t, m.Anomalies, AnomalyShallowBreathing)
}

func TestAggregator_ExcessiveMovementAnomaly(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))

	// Сильное дрожание сырого сигнала между кадрами
	samples := flatSamples(30, 0.10, 0.8, 500)
	for i := range samples {
		if i%2 == 0 {
			samples[i].Raw = 0.15
		} else {
			samples[i].Raw = 0.05
		}
	}

	m := a.aggregate(samples, nil, 0.10, PhaseHold, 15000)
	assert.Contains(t, m.Anomalies, AnomalyExcessiveMovement)
}

func TestAggregator_MovementLevelNormalizedToCeiling(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))

	// Неподвижный сигнал: уровень движения нулевой
	still := flatSamples(30, 0.10, 0.8, 500)
	m := a.aggregate(still, nil, 0.10, PhaseHold, 15000)
	assert.InDelta(t, 0.0, m.MovementLevel, 1e-9)

	// Дрожание сильно выше порога аномалии: уровень упирается в 1.0
	shaky := flatSamples(30, 0.10, 0.8, 500)
	for i := range shaky {
		if i%2 == 0 {
			shaky[i].Raw = 0.15
		} else {
			shaky[i].Raw = 0.05
		}
	}
	m = a.aggregate(shaky, nil, 0.10, PhaseHold, 15000)
	assert.InDelta(t, 1.0, m.MovementLevel, 1e-9)
}

func TestAggregator_PostureScoreAveraged(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))

	samples := flatSamples(10, 0.10, 0.8, 500)
	for i := range samples {
		if i%2 == 0 {
			samples[i].Posture = 0.9
		} else {
			samples[i].Posture = 0.7
		}
	}

	m := a.aggregate(samples, nil, 0.10, PhaseHold, 5000)
	assert.InDelta(t, 0.8, m.PostureScore, 1e-9)
}

func TestAggregator_ConfidenceIsSignalIndependent(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))

	// Уверенность прижата к нулю: метрика confidence около нуля,
	// но аномалии зависят только от сигнала и остаются пустыми
	samples := flatSamples(30, 0.10, 0.0, 500)
	m := a.aggregate(samples, nil, 0.10, PhaseTransition, 15000)

	assert.Empty(t, m.Anomalies)
	assert.InDelta(t, 0.0, m.Confidence, 1e-9)
}

func TestAggregator_DepthVariation(t *testing.T) {
	a := newMetricsAggregator(ThresholdsFor(LevelStandard, false))

	samples := flatSamples(10, 0.10, 0.8, 500)
	samples[3].Primary = 0.18
	samples[7].Primary = 0.06

	m := a.aggregate(samples, nil, 0.10, PhaseHold, 5000)
	assert.InDelta(t, 0.12, m.DepthVariation, 1e-9)
}
