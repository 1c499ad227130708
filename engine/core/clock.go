package core

import "time"

// Clock measures wall time between Start and Update. A stopped clock keeps
// its last elapsed value.
type Clock struct {
	start   time.Time
	running bool
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Start resets the elapsed time and begins measuring.
func (c *Clock) Start() {
	c.start = time.Now()
	c.running = true
	c.elapsed = 0
}

// Update refreshes the elapsed time. Has no effect on a stopped clock.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = time.Since(c.start)
	}
}

// Stop freezes the elapsed time at its current value.
func (c *Clock) Stop() {
	c.Update()
	c.running = false
}

// Elapsed returns the elapsed time in seconds.
func (c *Clock) Elapsed() float64 {
	return c.elapsed.Seconds()
}

// ElapsedMillis returns the elapsed time in milliseconds.
func (c *Clock) ElapsedMillis() float64 {
	return float64(c.elapsed.Nanoseconds()) / 1e6
}
