// Package debounce turns bursts of raw input into settled values and filters
// named collections against them.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler schedules callbacks. The default wraps time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(d *Debouncer) { d.sched = s }
}

// Debouncer emits a pushed value once no newer value arrived for the
// quiescence interval. Each field gets its own instance.
type Debouncer struct {
	mu      sync.Mutex
	sched   Scheduler
	wait    time.Duration
	emit    func(string)
	timer   Timer
	pending string
	seq     uint64
	closed  bool
}

// New creates a Debouncer calling emit with each settled value.
func New(wait time.Duration, emit func(string), opts ...Option) *Debouncer {
	d := &Debouncer{sched: realScheduler{}, wait: wait, emit: emit}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Push records a raw value and reschedules emission, cancelling the
// emission pending for any earlier value.
func (d *Debouncer) Push(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = v
	d.timer = d.sched.AfterFunc(d.wait, func() { d.fire(seq) })
}

// fire drops callbacks of timers superseded after they started running.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if d.closed || seq != d.seq || d.timer == nil {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.timer = nil
	d.mu.Unlock()
	d.emit(v)
}

// Flush emits the pending value now, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.closed || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.seq++
	v := d.pending
	d.mu.Unlock()
	d.emit(v)
}

// Pending reports whether an emission is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Close cancels any pending emission. Later pushes are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.closed = true
}

// Stream is the channel form of Debouncer: it reads raw values from in and
// sends settled ones on the returned channel. Closing in or cancelling ctx
// drops any pending value and closes the output.
func Stream(ctx context.Context, wait time.Duration, in <-chan string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		var timer *time.Timer
		var fire <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		var pending string
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if timer != nil {
					timer.Stop()
				}
				pending = v
				timer = time.NewTimer(wait)
				fire = timer.C
			case <-fire:
				timer, fire = nil, nil
				select {
				case out <- pending:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
