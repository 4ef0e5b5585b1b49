package node

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer is a cancellable recurring timer. Every tick of the
// underlying interval sends on tickCh; the interval can be changed with
// Reset, paused with Stop, and the whole timer retired with Shutdown. It
// backs the three recurring timers of the node run loop (leader rotation,
// block production, heartbeat), each with its own ControlTimer so they can
// be started, reset, and cancelled independently.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the interval
	stopCh       chan struct{}      //receives instruction to stop ticking
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
	set          bool
}

func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewFixedControlTimer returns a ControlTimer that ticks at a fixed
// interval, with no jitter.
func NewFixedControlTimer() *ControlTimer {
	fixed := func(d time.Duration) <-chan time.Time {
		if d == 0 {
			return nil
		}
		return time.After(d)
	}
	return NewControlTimer(fixed)
}

func (c *ControlTimer) Run(init time.Duration) {

	setTimer := func(t time.Duration) <-chan time.Time {
		c.set = true
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			c.tickCh <- struct{}{}
			timer = setTimer(init)
		case t := <-c.resetCh:
			init = t
			timer = setTimer(t)
		case <-c.stopCh:
			timer = nil
			c.set = false
		case <-c.shutdownCh:
			c.set = false
			return
		}
	}
}

// Reset changes the recurring interval, taking effect on the next tick.
func (c *ControlTimer) Reset(d time.Duration) {
	c.resetCh <- d
}

// Stop pauses ticking without retiring the Run goroutine.
func (c *ControlTimer) Stop() {
	c.stopCh <- struct{}{}
}

func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}

// OneShotTimer fires tickCh exactly once, after d, unless cancelled first.
// It backs the single-shot vote-window timer.
type OneShotTimer struct {
	tickCh  chan struct{}
	cancelCh chan struct{}
}

// NewOneShotTimer starts a OneShotTimer that fires after d. Calling Cancel
// before it fires suppresses the tick.
func NewOneShotTimer(d time.Duration) *OneShotTimer {
	o := &OneShotTimer{
		tickCh:   make(chan struct{}, 1),
		cancelCh: make(chan struct{}, 1),
	}
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			o.tickCh <- struct{}{}
		case <-o.cancelCh:
		}
	}()
	return o
}

// C returns the channel that receives exactly one value when the timer
// fires, unless it was cancelled first.
func (o *OneShotTimer) C() <-chan struct{} {
	return o.tickCh
}

// Cancel suppresses the pending tick. Safe to call after the timer has
// already fired.
func (o *OneShotTimer) Cancel() {
	select {
	case o.cancelCh <- struct{}{}:
	default:
	}
}
