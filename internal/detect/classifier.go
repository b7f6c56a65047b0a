package detect

import "math"

// phaseClassifier сопоставляет сглаженный сигнал с зафиксированной фазой.
// Единственная защита перехода - дебаунс по времени удержания: фаза
// фиксируется только если кандидат отличается от текущей фазы и с момента
// последней смены прошло не меньше dwellMS. Сэмплы с низкой уверенностью
// классифицируются наравне с остальными - деградация тихая.
type phaseClassifier struct {
	sensitivity float64
	dwellMS     int64

	committed    Phase
	lastChangeMS int64
	hasChange    bool
}

func newPhaseClassifier(sensitivity float64, dwellMS int64) *phaseClassifier {
	return &phaseClassifier{
		sensitivity: sensitivity,
		dwellMS:     dwellMS,
		committed:   PhaseTransition,
	}
}

// classify возвращает зафиксированную фазу для сигнала в момент tsMS
func (p *phaseClassifier) classify(signal, baseline float64, tsMS int64) Phase {
	candidate := p.candidate(signal, baseline)

	if candidate != p.committed {
		if !p.hasChange || tsMS-p.lastChangeMS >= p.dwellMS {
			p.committed = candidate
			p.lastChangeMS = tsMS
			p.hasChange = true
		}
	}

	return p.committed
}

// candidate вычисляет кандидатную фазу без дебаунса
func (p *phaseClassifier) candidate(signal, baseline float64) Phase {
	deviation := signal - baseline
	normalized := math.Abs(deviation) / baseline
	relative := deviation / baseline

	switch {
	case normalized < p.sensitivity/2:
		return PhaseHold
	case relative > p.sensitivity:
		return PhaseInhale
	case relative < -p.sensitivity:
		return PhaseExhale
	default:
		return PhaseTransition
	}
}

func (p *phaseClassifier) current() Phase {
	return p.committed
}

func (p *phaseClassifier) reset() {
	p.committed = PhaseTransition
	p.lastChangeMS = 0
	p.hasChange = false
}
