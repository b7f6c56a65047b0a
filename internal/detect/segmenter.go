package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// extremum - локальный максимум или минимум сигнала в окне поиска
type extremum struct {
	index int
	tsMS  int64
	value float64
}

// cycleSegmenter собирает завершенные дыхательные циклы из окна сэмплов.
// Цикл ограничен двумя пиками расширения с долиной между ними; принятые
// циклы не пересматриваются.
type cycleSegmenter struct {
	minDurationMS int64
	maxDurationMS int64
	window        int

	// Конец последнего принятого цикла - защита от повторной эмиссии
	lastAcceptedEndMS int64
}

func newCycleSegmenter(t Thresholds) *cycleSegmenter {
	return &cycleSegmenter{
		minDurationMS: t.MinCycleDurationMS,
		maxDurationMS: t.MaxCycleDurationMS,
		window:        t.PeakWindow,
	}
}

// segment сканирует хвост истории сэмплов и возвращает новые принятые циклы
func (s *cycleSegmenter) segment(history []BreathingSample) []Cycle {
	window := history
	if len(window) > s.window {
		window = window[len(window)-s.window:]
	}
	if len(window) < 3 {
		return nil
	}

	peaks, valleys := findExtrema(window)
	if len(peaks) < 2 || len(valleys) == 0 {
		return nil
	}

	var accepted []Cycle
	for i := 0; i+1 < len(peaks); i++ {
		peakA := peaks[i]
		peakB := peaks[i+1]

		valley, ok := valleyBetween(valleys, peakA.index, peakB.index)
		if !ok {
			continue
		}

		// Уже эмитированные участки не переоцениваем
		if peakA.tsMS < s.lastAcceptedEndMS {
			continue
		}

		duration := peakB.tsMS - peakA.tsMS
		if duration < s.minDurationMS || duration > s.maxDurationMS {
			continue
		}

		cycle := buildCycle(window, peakA, valley, peakB)
		accepted = append(accepted, cycle)
		s.lastAcceptedEndMS = peakB.tsMS
	}

	return accepted
}

// findExtrema ищет локальные экстремумы строгим сравнением с соседями.
// Дополнительного сглаживания здесь нет - сигнал уже сглажен экстрактором.
func findExtrema(window []BreathingSample) (peaks, valleys []extremum) {
	for i := 1; i < len(window)-1; i++ {
		v := window[i].Primary
		prev := window[i-1].Primary
		next := window[i+1].Primary

		switch {
		case v > prev && v > next:
			peaks = append(peaks, extremum{index: i, tsMS: window[i].TimestampMS, value: v})
		case v < prev && v < next:
			valleys = append(valleys, extremum{index: i, tsMS: window[i].TimestampMS, value: v})
		}
	}
	return peaks, valleys
}

func valleyBetween(valleys []extremum, start, end int) (extremum, bool) {
	for _, v := range valleys {
		if v.index > start && v.index < end {
			return v, true
		}
	}
	return extremum{}, false
}

// buildCycle собирает цикл с оценкой качества.
// Качество - взвешенная смесь средней уверенности сэмплов (40%),
// гладкости сигнала (30%) и согласованности амплитуды (30%).
func buildCycle(window []BreathingSample, peakA, valley, peakB extremum) Cycle {
	span := window[peakA.index : peakB.index+1]

	confidences := make([]float64, len(span))
	values := make([]float64, len(span))
	for i, smp := range span {
		confidences[i] = smp.Confidence
		values[i] = smp.Primary
	}

	meanConf := stat.Mean(confidences, nil)

	amplitude := peakA.value - valley.value
	if alt := peakB.value - valley.value; alt > amplitude {
		amplitude = alt
	}
	if amplitude < 1e-9 {
		amplitude = 1e-9
	}

	var deltaSum float64
	for i := 1; i < len(values); i++ {
		deltaSum += math.Abs(values[i] - values[i-1])
	}
	meanDelta := deltaSum / float64(len(values)-1)
	smoothness := clamp01(1 - meanDelta/amplitude)

	consistency := clamp01(1 - stat.StdDev(values, nil)/amplitude)

	quality := meanConf*0.4 + smoothness*0.3 + consistency*0.3

	var irregularities []string
	if meanConf < 0.3 {
		irregularities = append(irregularities, "low_confidence")
	}
	if smoothness < 0.4 {
		irregularities = append(irregularities, "noisy_signal")
	}

	return Cycle{
		StartMS:        peakA.tsMS,
		EndMS:          peakB.tsMS,
		ExhaleStartMS:  peakA.tsMS,
		ExhaleEndMS:    valley.tsMS,
		InhaleStartMS:  valley.tsMS,
		InhaleEndMS:    peakB.tsMS,
		DurationMS:     peakB.tsMS - peakA.tsMS,
		Quality:        clamp01(quality),
		Irregularities: irregularities,
	}
}

func (s *cycleSegmenter) reset() {
	s.lastAcceptedEndMS = 0
}
