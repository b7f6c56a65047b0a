package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullFaceFrame(tsMS int64) *LandmarkFrame {
	face := make([]Point, FaceMeshLandmarks)
	for i := range face {
		face[i] = Point{X: 0.5, Y: 0.5}
	}
	face[FaceNoseTip] = Point{X: 0.50, Y: 0.45}
	face[FaceChin] = Point{X: 0.50, Y: 0.60}
	face[FaceLeftEye] = Point{X: 0.42, Y: 0.42}
	face[FaceRightEye] = Point{X: 0.58, Y: 0.42}
	face[FaceMouthLeft] = Point{X: 0.46, Y: 0.55}
	face[FaceMouthRight] = Point{X: 0.54, Y: 0.55}
	face[FaceUpperLip] = Point{X: 0.50, Y: 0.54}
	face[FaceLowerLip] = Point{X: 0.50, Y: 0.56}
	return &LandmarkFrame{Face: face, TimestampMS: tsMS}
}

func TestExtractor_MissingLandmarksIsNotAnError(t *testing.T) {
	e := newSignalExtractor(LevelStandard, 0.3)

	assert.Nil(t, e.extract(&LandmarkFrame{TimestampMS: 100}))
	assert.Nil(t, e.extract(&LandmarkFrame{Pose: []Point{{X: 1, Y: 1}}, TimestampMS: 200}))

	// В standard-режиме лицо без позы сигнала не дает
	assert.Nil(t, e.extract(fullFaceFrame(300)))
}

func TestExtractor_AdvancedFallsBackToFace(t *testing.T) {
	e := newSignalExtractor(LevelAdvanced, 0.2)

	sample := e.extract(fullFaceFrame(100))
	require.NotNil(t, sample)
	// Прокси нос-подбородок: |0.60 - 0.45|
	assert.InDelta(t, 0.15, sample.Raw, 1e-9)
	assert.Greater(t, sample.Secondary, 0.0)
}

func TestExtractor_ExponentialSmoothing(t *testing.T) {
	const alpha = 0.4
	e := newSignalExtractor(LevelBasic, alpha)

	first := e.extract(poseFrame(0.10, 0))
	require.NotNil(t, first)
	// Первый сэмпл проходит без сглаживания
	assert.InDelta(t, 0.10, first.Primary, 1e-9)

	second := e.extract(poseFrame(0.20, 500))
	require.NotNil(t, second)
	want := 0.20*(1-alpha) + 0.10*alpha
	assert.InDelta(t, want, second.Primary, 1e-9)
	assert.InDelta(t, 0.20, second.Raw, 1e-9)
}

func TestExtractor_PostureScore(t *testing.T) {
	e := newSignalExtractor(LevelStandard, 0.3)

	// Нос позы в (0.5, 0.5): осанка = 1 - 0.1*1.5
	sample := e.extract(poseFrame(0.20, 100))
	require.NotNil(t, sample)
	assert.InDelta(t, 0.85, sample.Posture, 1e-9)

	// Нос лица в (0.5, 0.45) без позы: осанка = 1 - 0.05*1.5
	adv := newSignalExtractor(LevelAdvanced, 0.3)
	sample = adv.extract(fullFaceFrame(200))
	require.NotNil(t, sample)
	assert.InDelta(t, 0.925, sample.Posture, 1e-9)
}

func TestExtractor_ConfidenceBounds(t *testing.T) {
	e := newSignalExtractor(LevelAdvanced, 0.2)

	for i := 0; i < 20; i++ {
		frame := poseFrame(0.10, int64(i)*500)
		frame.Face = fullFaceFrame(frame.TimestampMS).Face

		sample := e.extract(frame)
		require.NotNil(t, sample)
		assert.GreaterOrEqual(t, sample.Confidence, 0.0)
		assert.LessOrEqual(t, sample.Confidence, 1.0)
	}

	// Полный набор ориентиров и ровный сигнал: уверенность высокая
	frame := poseFrame(0.10, 100000)
	frame.Face = fullFaceFrame(frame.TimestampMS).Face
	sample := e.extract(frame)
	require.NotNil(t, sample)
	assert.Greater(t, sample.Confidence, 0.8)
}

func TestExtractor_StabilityDegradesConfidence(t *testing.T) {
	stable := newSignalExtractor(LevelBasic, 0.3)
	jittery := newSignalExtractor(LevelBasic, 0.3)

	var stableConf, jitteryConf float64
	for i := 0; i < 10; i++ {
		s := stable.extract(poseFrame(0.10, int64(i)*500))
		require.NotNil(t, s)
		stableConf = s.Confidence

		span := 0.05
		if i%2 == 0 {
			span = 0.20
		}
		j := jittery.extract(poseFrame(span, int64(i)*500))
		require.NotNil(t, j)
		jitteryConf = j.Confidence
	}

	assert.Greater(t, stableConf, jitteryConf)
}

func TestExtractor_MalformedFrameDoesNotPanic(t *testing.T) {
	e := newSignalExtractor(LevelAdvanced, 0.2)

	// Лицевой массив короче ожидаемых индексов
	frame := &LandmarkFrame{
		Face:        make([]Point, 5),
		Pose:        make([]Point, 3),
		TimestampMS: 100,
	}

	assert.NotPanics(t, func() {
		assert.Nil(t, e.extract(frame))
	})
}

func TestExtractor_ResetClearsState(t *testing.T) {
	e := newSignalExtractor(LevelBasic, 0.4)

	e.extract(poseFrame(0.30, 0))
	e.reset()

	// После сброса сглаживание начинается заново
	sample := e.extract(poseFrame(0.10, 500))
	require.NotNil(t, sample)
	assert.InDelta(t, 0.10, sample.Primary, 1e-9)
}
