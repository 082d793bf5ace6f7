// Package clock provides the time sources sequences are measured against.
//
// Every source reports elapsed time since its own epoch and never goes
// backwards. The session clock only moves when the host advances it, so it
// follows pause and time scale; the wall clock follows real time.
package clock

import "time"

// Provider is a monotonically non-decreasing time source.
type Provider interface {
	Now() time.Duration
}

// Session is the pausable, scaled game-time clock. The host advances it once
// per tick with the real tick delta.
type Session struct {
	now    time.Duration
	scale  float64
	paused bool
}

func NewSession() *Session {
	return &Session{scale: 1}
}

func (c *Session) Now() time.Duration { return c.now }

// Advance moves the clock forward by dt multiplied by the time scale.
// Negative deltas and advances while paused are ignored.
func (c *Session) Advance(dt time.Duration) {
	if c.paused || dt <= 0 {
		return
	}
	c.now += time.Duration(float64(dt) * c.scale)
}

// SetScale sets the time multiplier. Negative values are clamped to 0.
func (c *Session) SetScale(scale float64) {
	if scale < 0 {
		scale = 0
	}
	c.scale = scale
}

func (c *Session) Scale() float64 { return c.scale }
func (c *Session) Pause()         { c.paused = true }
func (c *Session) Resume()        { c.paused = false }
func (c *Session) Paused() bool   { return c.paused }

// Wall reports real elapsed time since construction, unaffected by pause
// or scale.
type Wall struct {
	epoch time.Time
	now   func() time.Time
}

func NewWall() *Wall {
	return NewWallFunc(time.Now)
}

// NewWallFunc builds a wall clock over a custom time function.
func NewWallFunc(now func() time.Time) *Wall {
	return &Wall{epoch: now(), now: now}
}

func (c *Wall) Now() time.Duration {
	d := c.now().Sub(c.epoch)
	if d < 0 {
		return 0
	}
	return d
}

// Manual is a clock moved only by explicit calls. Used by tests and by
// hosts that drive time themselves.
type Manual struct {
	now time.Duration
}

func NewManual() *Manual { return &Manual{} }

func (c *Manual) Now() time.Duration { return c.now }

// Advance moves the clock forward; negative deltas are ignored.
func (c *Manual) Advance(d time.Duration) {
	if d > 0 {
		c.now += d
	}
}

// Set moves the clock to t if t is not in the past.
func (c *Manual) Set(t time.Duration) {
	if t > c.now {
		c.now = t
	}
}
