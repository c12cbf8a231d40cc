// Package engine advances the economy in discrete ticks.
// Each tick runs the stages events, production, faction consumption,
// pricing, shops and trade, in that order.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Clock drives a tick function at a wall-clock cadence.
type Clock struct {
	Interval time.Duration // wall time between ticks at speed 1

	// OnTick runs once per tick. An error is logged and the clock keeps going;
	// the failed tick is retried from the last committed state.
	OnTick func(ctx context.Context) error

	mu      sync.Mutex
	speed   float64 // 1.0 = real-time, 0 = paused
	running bool
	stop    chan struct{}
}

// NewClock creates a clock at speed 1.
func NewClock(interval time.Duration, onTick func(ctx context.Context) error) *Clock {
	return &Clock{
		Interval: interval,
		OnTick:   onTick,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the clock.
func (c *Clock) SetSpeed(speed float64) {
	if speed < 0 || math.IsNaN(speed) {
		speed = 0
	}
	c.mu.Lock()
	c.speed = speed
	c.mu.Unlock()
}

// Running reports whether Run is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Run starts the tick loop. Blocks until ctx is done or Stop is called.
func (c *Clock) Run(ctx context.Context) {
	c.mu.Lock()
	c.running = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	slog.Info("simulation clock started", "interval", c.Interval, "speed", c.Speed())
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		slog.Info("simulation clock stopped")
	}()

	for {
		speed := c.Speed()
		wait := 100 * time.Millisecond // paused: poll for a speed change
		if speed > 0 {
			start := time.Now()
			if err := c.OnTick(ctx); err != nil {
				slog.Error("tick failed", "error", err)
			}
			wait = time.Duration(float64(c.Interval)/speed) - time.Since(start)
		}
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-time.After(wait):
		}
	}
}

// Stop halts the tick loop after the current tick.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
