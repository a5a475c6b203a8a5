package playback

import (
	"math"

	"github.com/Faultbox/mjtraj/pkg/formats"
)

// DefaultFrameRate replaces missing or non-positive frame rates.
const DefaultFrameRate = formats.DefaultFrameRate

// frameEpsilon absorbs float error so exact frame boundaries do not floor
// to the previous frame.
const frameEpsilon = 1e-9

// EffectiveRate returns r, or DefaultFrameRate when r is not positive.
func EffectiveRate(r float64) float64 {
	if r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r) {
		return r
	}
	return DefaultFrameRate
}

// Timeline places one trajectory on the global clock.
type Timeline struct {
	// StartFrame is the local frame shown at global frame 0. May be negative.
	StartFrame int
	FrameRate  float64
	FrameCount int
}

// Duration returns the trajectory length in seconds.
func (tl Timeline) Duration() float64 {
	return float64(tl.FrameCount) / EffectiveRate(tl.FrameRate)
}

// LocalFrame maps a global frame to a frame index of tl:
//
//	clamp(floor((global/primaryRate + start/rate) * rate), 0, N-1)
//
// The result is monotonic in global for a positive rate. An empty timeline
// yields 0.
func LocalFrame(global, primaryRate float64, tl Timeline) int {
	if tl.FrameCount <= 0 {
		return 0
	}
	rate := EffectiveRate(tl.FrameRate)
	startTime := float64(tl.StartFrame) / rate
	currentTime := global / EffectiveRate(primaryRate)
	f := math.Floor((currentTime+startTime)*rate + frameEpsilon)
	return clampFrame(f, tl.FrameCount)
}

// EndFrame returns the global frame at which tl shows its last frame.
func EndFrame(primaryRate float64, tl Timeline) float64 {
	if tl.FrameCount <= 0 {
		return 0
	}
	rate := EffectiveRate(tl.FrameRate)
	end := (float64(tl.FrameCount-1) - float64(tl.StartFrame)) / rate * EffectiveRate(primaryRate)
	return math.Max(end, 0)
}

// ExportFrame returns the frame shown at time t seconds of an export,
// min(round(t * rate), N-1). Start offsets do not apply to exports.
func ExportFrame(t, rate float64, frameCount int) int {
	if frameCount <= 0 {
		return 0
	}
	return clampFrame(math.Round(t*EffectiveRate(rate)), frameCount)
}

func clampFrame(f float64, n int) int {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > float64(n-1) {
		return n - 1
	}
	return int(f)
}
