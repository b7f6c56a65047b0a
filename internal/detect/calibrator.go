package detect

import "log"

// calibrator накапливает первые K сырых значений сигнала и вычисляет
// персональную базовую линию как их среднее арифметическое.
// Калибровка одноразовая: повторный запуск только через Reset детектора.
type calibrator struct {
	target   int
	samples  []float64
	baseline float64
	done     bool
}

func newCalibrator(target int) *calibrator {
	return &calibrator{
		target:  target,
		samples: make([]float64, 0, target),
	}
}

// add добавляет сырое значение. Возвращает true, если калибровка
// завершилась именно на этом вызове.
func (c *calibrator) add(raw float64) bool {
	if c.done {
		return false
	}

	c.samples = append(c.samples, raw)
	if len(c.samples) < c.target {
		return false
	}

	var sum float64
	for _, v := range c.samples {
		sum += v
	}
	c.baseline = sum / float64(len(c.samples))

	// Нулевая базовая линия ломает нормализацию отклонений
	if c.baseline < 1e-9 {
		c.baseline = 1e-9
	}

	c.done = true
	log.Printf("[CALIBRATION] Baseline established: %.6f (samples=%d)", c.baseline, len(c.samples))
	return true
}

func (c *calibrator) calibrated() bool {
	return c.done
}

func (c *calibrator) value() float64 {
	return c.baseline
}

func (c *calibrator) reset() {
	c.samples = c.samples[:0]
	c.baseline = 0
	c.done = false
}
