package core

import "sync"

const AVG_COUNT uint8 = 30

// FrameStats is a snapshot of the rolling frame metrics.
type FrameStats struct {
	FPS         float64
	FrameTimeMS float64
	Frames      uint64
}

type metricsState struct {
	mu                 sync.Mutex
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	framesThisSecond   int32
	accumulatedFrameMS float64
	fps                float64
	totalFrames        uint64
}

var metrics = &metricsState{}

// MetricsReset clears every accumulated value.
func MetricsReset() {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	metrics.frameAVGCounter = 0
	metrics.msTimes = [AVG_COUNT]float64{}
	metrics.msAvg = 0
	metrics.framesThisSecond = 0
	metrics.accumulatedFrameMS = 0
	metrics.fps = 0
	metrics.totalFrames = 0
}

// MetricsUpdate records one frame that took frameSeconds of wall time.
func MetricsUpdate(frameSeconds float64) {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	frameMS := frameSeconds * 1000.0
	metrics.msTimes[metrics.frameAVGCounter] = frameMS
	if metrics.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += metrics.msTimes[i]
		}
		metrics.msAvg = sum / float64(AVG_COUNT)
	}
	metrics.frameAVGCounter++
	metrics.frameAVGCounter %= AVG_COUNT

	metrics.accumulatedFrameMS += frameMS
	metrics.framesThisSecond++
	if metrics.accumulatedFrameMS > 1000 {
		metrics.fps = float64(metrics.framesThisSecond)
		metrics.accumulatedFrameMS -= 1000
		metrics.framesThisSecond = 0
	}
	metrics.totalFrames++
}

func MetricsFPS() float64 {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return metrics.fps
}

func MetricsFrameTime() float64 {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return metrics.msAvg
}

func MetricsFrame() FrameStats {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return FrameStats{FPS: metrics.fps, FrameTimeMS: metrics.msAvg, Frames: metrics.totalFrames}
}
