package detect

import (
	"log"
	"math"
)

// rawWindow - размер скользящего окна сырых значений для оценки стабильности
const rawWindow = 5

// signalExtractor извлекает скалярный дыхательный сигнал из кадра ориентиров.
// Хранит только короткое окно предыдущих значений для сглаживания и оценки
// стабильности; вся остальная история принадлежит детектору.
type signalExtractor struct {
	level ProcessingLevel
	alpha float64

	prevSmoothed float64
	hasPrev      bool
	recentRaws   []float64
}

func newSignalExtractor(level ProcessingLevel, alpha float64) *signalExtractor {
	return &signalExtractor{
		level:      level,
		alpha:      alpha,
		recentRaws: make([]float64, 0, rawWindow),
	}
}

// extract возвращает сэмпл дыхательного сигнала или nil, если необходимые
// ориентиры отсутствуют. Отсутствие лица/позы - не ошибка, а деградация.
func (e *signalExtractor) extract(frame *LandmarkFrame) (sample *BreathingSample) {
	// Некорректные массивы ориентиров не должны ронять детектор:
	// неудачное извлечение затрагивает только текущий кадр
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] Signal extraction failed for frame ts=%d: %v", frame.TimestampMS, r)
			sample = nil
		}
	}()

	raw, ok := e.expansionSignal(frame)
	if !ok {
		return nil
	}

	var secondary float64
	if e.level == LevelAdvanced {
		secondary = e.facialTension(frame.Face)
	}

	smoothed := raw
	if e.hasPrev {
		smoothed = raw*(1-e.alpha) + e.prevSmoothed*e.alpha
	}
	e.prevSmoothed = smoothed
	e.hasPrev = true

	conf := e.confidence(frame, raw)

	e.pushRaw(raw)

	return &BreathingSample{
		TimestampMS: frame.TimestampMS,
		Raw:         raw,
		Primary:     smoothed,
		Secondary:   secondary,
		Confidence:  conf,
		Posture:     postureScore(frame),
	}
}

// Ожидаемое положение носа в кадре при хорошей осанке
const (
	postureCenterX = 0.5
	postureCenterY = 0.4
)

// postureScore оценивает осанку по отклонению носа от ожидаемого положения
// в кадре: 1.0 - голова по центру и на нужной высоте, 0.0 - сильный
// наклон или смещение. Горизонтальное отклонение штрафуется сильнее
// вертикального.
func postureScore(frame *LandmarkFrame) float64 {
	var nose Point
	switch {
	case len(frame.Pose) > PoseNose:
		nose = frame.Pose[PoseNose]
	case len(frame.Face) > FaceNoseTip:
		nose = frame.Face[FaceNoseTip]
	default:
		return 0
	}

	xDev := math.Abs(nose.X - postureCenterX)
	yDev := math.Abs(nose.Y - postureCenterY)

	return clamp01(1 - (xDev*2 + yDev*1.5))
}

// expansionSignal вычисляет прокси расширения грудной клетки.
// Базовый режим использует только расстояние между плечами; стандартный и
// продвинутый добавляют вертикальный размер торса. При отсутствии позы
// продвинутый режим падает на лицевой прокси (расстояние нос-подбородок).
func (e *signalExtractor) expansionSignal(frame *LandmarkFrame) (float64, bool) {
	if len(frame.Pose) > PoseRightShoulder {
		left := frame.Pose[PoseLeftShoulder]
		right := frame.Pose[PoseRightShoulder]
		shoulderSpan := dist2D(left, right)

		if e.level == LevelBasic || len(frame.Pose) <= PoseRightHip {
			return shoulderSpan, true
		}

		// Несколько опорных точек торса: ширина плеч + высота торса
		shoulderMid := midpoint(left, right)
		hipMid := midpoint(frame.Pose[PoseLeftHip], frame.Pose[PoseRightHip])
		torsoHeight := dist2D(shoulderMid, hipMid)

		return (shoulderSpan + torsoHeight) / 2, true
	}

	if e.level == LevelAdvanced && len(frame.Face) > FaceChin {
		return dist2D(frame.Face[FaceNoseTip], frame.Face[FaceChin]), true
	}

	return 0, false
}

// facialTension оценивает напряжение лица по кластерам глаз и рта
func (e *signalExtractor) facialTension(face []Point) float64 {
	if len(face) <= FaceMouthRight {
		return 0
	}

	mouthWidth := dist2D(face[FaceMouthLeft], face[FaceMouthRight])
	mouthOpen := dist2D(face[FaceUpperLip], face[FaceLowerLip])
	eyeSpan := dist2D(face[FaceLeftEye], face[FaceRightEye])

	if eyeSpan < 1e-9 {
		return 0
	}

	// Нормализуем размеры рта относительно межглазного расстояния
	return clamp01((mouthOpen + mouthWidth*0.25) / eyeSpan)
}

// confidence вычисляет уверенность сэмпла из доли присутствующих ориентиров,
// стабильности сигнала и (в продвинутом режиме) плотности лицевой сетки
func (e *signalExtractor) confidence(frame *LandmarkFrame, raw float64) float64 {
	presence := e.presenceFraction(frame)
	stability := e.stability(raw)

	if e.level == LevelAdvanced {
		density := clamp01(float64(len(frame.Face)) / FaceMeshLandmarks)
		return clamp01(presence*0.5 + stability*0.3 + density*0.2)
	}

	return clamp01(presence*0.6 + stability*0.4)
}

func (e *signalExtractor) presenceFraction(frame *LandmarkFrame) float64 {
	expected := 0
	present := 0

	expected += PoseLandmarks
	if n := len(frame.Pose); n > 0 {
		present += min(n, PoseLandmarks)
	}

	if e.level != LevelBasic {
		expected += FaceMeshLandmarks
		if n := len(frame.Face); n > 0 {
			present += min(n, FaceMeshLandmarks)
		}
	}

	return clamp01(float64(present) / float64(expected))
}

// stability - обратная мера дрожания сырого сигнала за последние кадры
func (e *signalExtractor) stability(raw float64) float64 {
	if len(e.recentRaws) == 0 {
		return 0.5
	}

	var total float64
	prev := e.recentRaws[0]
	for _, v := range e.recentRaws[1:] {
		total += math.Abs(v - prev)
		prev = v
	}
	total += math.Abs(raw - prev)

	meanDelta := total / float64(len(e.recentRaws))
	scale := math.Abs(raw)
	if scale < 1e-9 {
		scale = 1e-9
	}

	return clamp01(1 - meanDelta/scale)
}

func (e *signalExtractor) pushRaw(raw float64) {
	if len(e.recentRaws) >= rawWindow {
		copy(e.recentRaws, e.recentRaws[1:])
		e.recentRaws = e.recentRaws[:len(e.recentRaws)-1]
	}
	e.recentRaws = append(e.recentRaws, raw)
}

func (e *signalExtractor) reset() {
	e.prevSmoothed = 0
	e.hasPrev = false
	e.recentRaws = e.recentRaws[:0]
}

func dist2D(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
