// Package detect реализует потоковый оценщик ритма дыхания по кадрам
// лицевых и позовых ориентиров: извлечение сигнала, калибровку базовой
// линии, классификацию фаз, сегментацию циклов и агрегацию метрик.
//
// Детектор однопоточный и принадлежит одной сессии. Вся его работа -
// чистое вычисление над ограниченными буферами в памяти; блокирующего
// ввода-вывода нет, внешней персистентности нет. Для параллельных сессий
// создаются отдельные экземпляры.
package detect

// Options задает параметры создания детектора
type Options struct {
	// Mobile включает адаптацию порогов под слабый клиент
	Mobile bool

	// Level - уровень обработки; пустое значение трактуется как standard
	Level ProcessingLevel
}

// Detector - консолидированный детектор ритма дыхания.
// Один экземпляр = одна активная сессия; между сессиями состояние
// очищается через Reset.
type Detector struct {
	mobile     bool
	level      ProcessingLevel
	thresholds Thresholds

	extractor  *signalExtractor
	calibrator *calibrator
	classifier *phaseClassifier
	segmenter  *cycleSegmenter
	aggregator *metricsAggregator

	samples []BreathingSample
	cycles  []Cycle
}

// New создает детектор с порогами, выведенными из уровня обработки
func New(opts Options) *Detector {
	level := opts.Level
	if level == "" {
		level = LevelStandard
	}

	t := ThresholdsFor(level, opts.Mobile)

	return &Detector{
		mobile:     opts.Mobile,
		level:      level,
		thresholds: t,
		extractor:  newSignalExtractor(level, t.SmoothingAlpha),
		calibrator: newCalibrator(t.CalibrationSamples),
		classifier: newPhaseClassifier(t.Sensitivity, t.PhaseDwellMS),
		segmenter:  newCycleSegmenter(t),
		aggregator: newMetricsAggregator(t),
		samples:    make([]BreathingSample, 0, t.SampleHistoryCap),
		cycles:     make([]Cycle, 0, t.CycleHistoryCap),
	}
}

// Analyze обрабатывает один кадр ориентиров и возвращает сводку ритма.
// Деградированный вход (пустой кадр, отсутствие ориентиров, сбой
// извлечения) дает резервную сводку с нулевой уверенностью - ошибок
// этот метод не возвращает никогда.
func (d *Detector) Analyze(frame *LandmarkFrame) *RhythmMetrics {
	if frame == nil {
		return d.fallbackMetrics(0)
	}

	sample := d.extractor.extract(frame)
	if sample == nil {
		return d.fallbackMetrics(frame.TimestampMS)
	}

	// До завершения калибровки классификация и сегментация не запускаются
	if !d.calibrator.calibrated() {
		d.calibrator.add(sample.Raw)
		if !d.calibrator.calibrated() {
			return d.fallbackMetrics(frame.TimestampMS)
		}
	}

	d.appendSample(*sample)

	baseline := d.calibrator.value()
	phase := d.classifier.classify(sample.Primary, baseline, sample.TimestampMS)

	for _, cycle := range d.segmenter.segment(d.samples) {
		d.appendCycle(cycle)
	}

	return d.aggregator.aggregate(d.samples, d.cycles, baseline, phase, sample.TimestampMS)
}

// fallbackMetrics - нейтральная сводка при отсутствии пригодного сигнала
func (d *Detector) fallbackMetrics(tsMS int64) *RhythmMetrics {
	return &RhythmMetrics{
		CurrentPhase:      PhaseTransition,
		BreathsPerMinute:  defaultBreathsPerMinute,
		RhythmConsistency: defaultConsistency,
		Cycles:            []Cycle{},
		Confidence:        0,
		Calibrated:        d.calibrator.calibrated(),
		TimestampMS:       tsMS,
	}
}

// appendSample добавляет сэмпл в историю. При переполнении вытесняется
// сразу четверть самых старых записей, чтобы амортизировать очистку.
func (d *Detector) appendSample(s BreathingSample) {
	if len(d.samples) >= d.thresholds.SampleHistoryCap {
		drop := d.thresholds.SampleHistoryCap / 4
		if drop < 1 {
			drop = 1
		}
		d.samples = append(d.samples[:0], d.samples[drop:]...)
	}
	d.samples = append(d.samples, s)
}

func (d *Detector) appendCycle(c Cycle) {
	if len(d.cycles) >= d.thresholds.CycleHistoryCap {
		drop := d.thresholds.CycleHistoryCap / 4
		if drop < 1 {
			drop = 1
		}
		d.cycles = append(d.cycles[:0], d.cycles[drop:]...)
	}
	d.cycles = append(d.cycles, c)
}

// Status возвращает диагностический снимок детектора
func (d *Detector) Status() Status {
	return Status{
		HistorySize: len(d.samples),
		CycleCount:  len(d.cycles),
		Level:       d.level,
		Mobile:      d.mobile,
		Calibrated:  d.calibrator.calibrated(),
		Baseline:    d.calibrator.value(),
		Thresholds:  d.thresholds,
	}
}

// Calibrated сообщает, установлена ли базовая линия сессии
func (d *Detector) Calibrated() bool {
	return d.calibrator.calibrated()
}

// SetProcessingLevel переключает уровень обработки и перевыводит пороги.
// Калибровка, история и зафиксированная фаза сохраняются - меняются
// только настраиваемые параметры стадий.
func (d *Detector) SetProcessingLevel(level ProcessingLevel, mobile bool) {
	d.level = level
	d.mobile = mobile

	t := ThresholdsFor(level, mobile)
	d.thresholds = t

	d.extractor.level = level
	d.extractor.alpha = t.SmoothingAlpha
	d.classifier.sensitivity = t.Sensitivity
	d.classifier.dwellMS = t.PhaseDwellMS
	d.segmenter.minDurationMS = t.MinCycleDurationMS
	d.segmenter.maxDurationMS = t.MaxCycleDurationMS
	d.segmenter.window = t.PeakWindow
	d.aggregator.thresholds = t
}

// Reset атомарно очищает все буферы и состояние калибровки.
// Следующий вызов Analyze снова начнет с калибровки.
func (d *Detector) Reset() {
	d.samples = d.samples[:0]
	d.cycles = d.cycles[:0]
	d.extractor.reset()
	d.calibrator.reset()
	d.classifier.reset()
	d.segmenter.reset()
}
