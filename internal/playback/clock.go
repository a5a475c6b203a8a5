package playback

import (
	"math"
	"time"
)

// Clock is the global playback position, counted in primary-rate frames.
type Clock struct {
	frame   float64
	playing bool
	speed   float64
	loop    bool
}

// NewClock returns a paused clock at frame 0 with speed 1 and looping on.
func NewClock() *Clock {
	return &Clock{speed: 1, loop: true}
}

// Frame returns the fractional global frame.
func (c *Clock) Frame() float64 { return c.frame }

// Playing reports whether Advance moves the clock.
func (c *Clock) Playing() bool { return c.playing }

// Speed returns the playback speed multiplier.
func (c *Clock) Speed() float64 { return c.speed }

// Loop reports whether playback wraps at the end.
func (c *Clock) Loop() bool { return c.loop }

// Play starts advancing.
func (c *Clock) Play() { c.playing = true }

// Pause stops advancing; the frame is kept.
func (c *Clock) Pause() { c.playing = false }

// Toggle flips between playing and paused.
func (c *Clock) Toggle() { c.playing = !c.playing }

// SetLoop enables or disables wrapping.
func (c *Clock) SetLoop(loop bool) { c.loop = loop }

// SetSpeed sets the speed multiplier. Non-positive values are ignored.
func (c *Clock) SetSpeed(s float64) {
	if s > 0 {
		c.speed = s
	}
}

// Seek jumps to a global frame; negative frames clamp to 0.
func (c *Clock) Seek(frame float64) {
	c.frame = math.Max(frame, 0)
}

// Step moves by n whole frames while paused or playing, clamped to
// [0, last].
func (c *Clock) Step(n int, last float64) {
	c.frame = math.Min(math.Max(math.Floor(c.frame)+float64(n), 0), math.Max(last, 0))
}

// Advance moves the clock by dt at the primary rate. A looping clock wraps
// once the last frame has been shown for a full frame; otherwise the clock
// stops on the last frame and pauses.
func (c *Clock) Advance(dt time.Duration, primaryRate, last float64) {
	if !c.playing || dt <= 0 {
		return
	}
	c.frame += dt.Seconds() * EffectiveRate(primaryRate) * c.speed
	if last <= 0 {
		c.frame = 0
		return
	}
	if c.loop {
		if c.frame >= last+1 {
			c.frame = math.Mod(c.frame, last+1)
		}
		return
	}
	if c.frame > last {
		c.frame = last
		c.playing = false
	}
}
