package emulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

// FrameGenerator порождает синтетические кадры ориентиров
type FrameGenerator interface {
	// NextFrame возвращает следующий кадр для заданного момента времени
	NextFrame(tsMS int64) *detect.LandmarkFrame

	// Reset сбрасывает фазу дыхания
	Reset()
}

// breathGenerator моделирует синусоидальное движение плеч и грудной клетки
type breathGenerator struct {
	rand   *rand.Rand
	config BreathingConfig
	mu     sync.Mutex

	startMS int64
}

// NewBreathGenerator создает генератор дыхательных кадров
func NewBreathGenerator(cfg BreathingConfig) FrameGenerator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &breathGenerator{
		rand:    rand.New(rand.NewSource(seed)),
		config:  cfg,
		startMS: -1,
	}
}

func (g *breathGenerator) NextFrame(tsMS int64) *detect.LandmarkFrame {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.startMS < 0 {
		g.startMS = tsMS
	}

	// Кадры без лица моделируют потерю распознавания
	if g.config.DropoutChance > 0 && g.rand.Float64() < g.config.DropoutChance {
		return &detect.LandmarkFrame{TimestampMS: tsMS}
	}

	elapsed := float64(tsMS-g.startMS) / 1000.0
	omega := 2 * math.Pi * g.config.BreathsPerMinute / 60.0
	span := g.config.BaseSpan + g.config.Amplitude*math.Sin(omega*elapsed)
	span += g.noise()

	return &detect.LandmarkFrame{
		Face:        g.facePoints(span),
		Pose:        g.posePoints(span),
		TimestampMS: tsMS,
	}
}

func (g *breathGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startMS = -1
}

// posePoints строит набор точек позы с плечами на заданном расстоянии
func (g *breathGenerator) posePoints(span float64) []detect.Point {
	points := make([]detect.Point, detect.PoseLandmarks)
	for i := range points {
		points[i] = detect.Point{X: 0.5, Y: 0.5}
	}

	// Плечи расходятся симметрично относительно центра кадра
	points[detect.PoseLeftShoulder] = detect.Point{X: 0.5 - span/2, Y: 0.4 + g.noise()}
	points[detect.PoseRightShoulder] = detect.Point{X: 0.5 + span/2, Y: 0.4 + g.noise()}

	// Бедра опускаются вместе с расширением грудной клетки
	torso := 0.35 + (span-g.config.BaseSpan)/2
	points[detect.PoseLeftHip] = detect.Point{X: 0.45, Y: 0.4 + torso}
	points[detect.PoseRightHip] = detect.Point{X: 0.55, Y: 0.4 + torso}
	points[detect.PoseNose] = detect.Point{X: 0.5, Y: 0.2}

	return points
}

// facePoints строит лицевую сетку с подбородком, следующим за дыханием
func (g *breathGenerator) facePoints(span float64) []detect.Point {
	points := make([]detect.Point, detect.FaceMeshLandmarks)
	for i := range points {
		points[i] = detect.Point{X: 0.5, Y: 0.25}
	}

	breath := (span - g.config.BaseSpan) / 2

	points[detect.FaceForehead] = detect.Point{X: 0.5, Y: 0.12}
	points[detect.FaceNoseTip] = detect.Point{X: 0.5, Y: 0.22 + g.noise()}
	points[detect.FaceChin] = detect.Point{X: 0.5, Y: 0.34 + breath}
	points[detect.FaceLeftEye] = detect.Point{X: 0.45, Y: 0.18}
	points[detect.FaceRightEye] = detect.Point{X: 0.55, Y: 0.18}
	points[detect.FaceMouthLeft] = detect.Point{X: 0.47, Y: 0.28}
	points[detect.FaceMouthRight] = detect.Point{X: 0.53, Y: 0.28}
	points[detect.FaceUpperLip] = detect.Point{X: 0.5, Y: 0.275}
	points[detect.FaceLowerLip] = detect.Point{X: 0.5, Y: 0.285}

	return points
}

func (g *breathGenerator) noise() float64 {
	if g.config.Noise <= 0 {
		return 0
	}
	return (g.rand.Float64()*2 - 1) * g.config.Noise
}
