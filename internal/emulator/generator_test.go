package emulator

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imperfectbreath/breathsense/internal/detect"
)

func testBreathingConfig() BreathingConfig {
	return BreathingConfig{
		BreathsPerMinute: 15.0,
		BaseSpan:         0.25,
		Amplitude:        0.05,
		Noise:            0,
		DropoutChance:    0,
		Seed:             42,
	}
}

func shoulderSpan(frame *detect.LandmarkFrame) float64 {
	left := frame.Pose[detect.PoseLeftShoulder]
	right := frame.Pose[detect.PoseRightShoulder]
	return math.Abs(right.X - left.X)
}

func TestBreathGenerator_SpanOscillates(t *testing.T) {
	gen := NewBreathGenerator(testBreathingConfig())

	// 15 вдохов/мин = период 4 секунды
	minSpan, maxSpan := math.Inf(1), math.Inf(-1)
	for ts := int64(0); ts <= 4000; ts += 250 {
		frame := gen.NextFrame(ts)
		require.Len(t, frame.Pose, detect.PoseLandmarks)
		span := shoulderSpan(frame)
		minSpan = math.Min(minSpan, span)
		maxSpan = math.Max(maxSpan, span)
	}

	assert.InDelta(t, 0.20, minSpan, 0.01)
	assert.InDelta(t, 0.30, maxSpan, 0.01)
}

func TestBreathGenerator_PeriodMatchesBPM(t *testing.T) {
	gen := NewBreathGenerator(testBreathingConfig())

	// Через полный период сигнал возвращается к исходному значению
	first := shoulderSpan(gen.NextFrame(0))
	full := shoulderSpan(gen.NextFrame(4000))
	assert.InDelta(t, first, full, 1e-9)

	// В четверти периода - максимум
	quarter := shoulderSpan(gen.NextFrame(1000))
	assert.InDelta(t, 0.30, quarter, 1e-9)
}

func TestBreathGenerator_DropoutProducesEmptyFrames(t *testing.T) {
	cfg := testBreathingConfig()
	cfg.DropoutChance = 1.0
	gen := NewBreathGenerator(cfg)

	frame := gen.NextFrame(0)
	assert.Empty(t, frame.Face)
	assert.Empty(t, frame.Pose)
	assert.Equal(t, int64(0), frame.TimestampMS)
}

func TestBreathGenerator_FaceFollowsBreathing(t *testing.T) {
	gen := NewBreathGenerator(testBreathingConfig())

	exhale := gen.NextFrame(0)
	inhale := gen.NextFrame(1000)

	require.Len(t, inhale.Face, detect.FaceMeshLandmarks)
	assert.Greater(t, inhale.Face[detect.FaceChin].Y, exhale.Face[detect.FaceChin].Y)
}

func TestBreathGenerator_ResetRestartsPhase(t *testing.T) {
	gen := NewBreathGenerator(testBreathingConfig())

	first := shoulderSpan(gen.NextFrame(0))
	gen.NextFrame(1000)

	gen.Reset()
	restarted := shoulderSpan(gen.NextFrame(5000))
	assert.InDelta(t, first, restarted, 1e-9)
}

func TestBreathGenerator_DetectorSeesCycles(t *testing.T) {
	gen := NewBreathGenerator(testBreathingConfig())
	detector := detect.New(detect.Options{})

	var last *detect.RhythmMetrics
	for ts := int64(0); ts <= 30000; ts += 500 {
		last = detector.Analyze(gen.NextFrame(ts))
	}

	require.NotNil(t, last)
	assert.True(t, last.Calibrated)
	require.NotEmpty(t, last.Cycles)
	for _, c := range last.Cycles {
		assert.InDelta(t, 4000, float64(c.DurationMS), 600)
	}
	assert.InDelta(t, 15.0, last.BreathsPerMinute, 2.5)
}

func TestJSONLSender_WritesFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")

	sender, err := NewJSONLSender(path)
	require.NoError(t, err)

	gen := NewBreathGenerator(testBreathingConfig())
	for ts := int64(0); ts < 2000; ts += 500 {
		require.NoError(t, sender.Send(gen.NextFrame(ts)))
	}
	require.NoError(t, sender.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	lines := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var frame detect.LandmarkFrame
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &frame))
		require.Len(t, frame.Pose, detect.PoseLandmarks)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 4, lines)
}
