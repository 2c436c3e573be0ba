// Package watchdog stops the bridge when the vehicle link stays down. A
// single repeating timer samples the link on every period; when the link is
// down it calls Terminate once. The timer re-arms after every firing until
// Stop is called, and Reset restarts the countdown.
package watchdog

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultPeriod is the watchdog period used when Options.Period is zero.
const DefaultPeriod = 30 * time.Second

// Probe reports whether the vehicle link is up.
type Probe interface {
	IsConnected() bool
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc schedules f with time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Watchdog.
type Options struct {
	Period    time.Duration
	AfterFunc AfterFunc // Defaults to RealAfterFunc.
	Logger    *slog.Logger
}

// Watchdog is the idle timer. It is safe for concurrent use.
type Watchdog struct {
	probe     Probe
	terminate func()
	period    time.Duration
	afterFunc AfterFunc
	log       *slog.Logger

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	stopped bool

	terminateOnce sync.Once
}

// New creates a Watchdog. It does nothing until Start or Reset is called.
func New(probe Probe, terminate func(), opts Options) *Watchdog {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = RealAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Watchdog{
		probe:     probe,
		terminate: terminate,
		period:    opts.Period,
		afterFunc: opts.AfterFunc,
		log:       opts.Logger,
	}
}

// Period returns the configured period.
func (w *Watchdog) Period() time.Duration { return w.period }

// Start arms the watchdog. It is the same as Reset.
func (w *Watchdog) Start() { w.Reset() }

// Reset cancels any pending firing and re-arms for a full period. It is a
// no-op after Stop.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.armLocked()
}

// Stop cancels the watchdog for good.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watchdog) armLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.afterFunc(w.period, func() { w.fire(gen) })
}

func (w *Watchdog) fire(gen uint64) {
	w.mu.Lock()
	if w.stopped || gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if !w.probe.IsConnected() {
		w.terminateOnce.Do(func() {
			w.log.Info("vehicle link idle, terminating", "period", w.period)
			w.terminate()
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || gen != w.gen {
		return
	}
	w.armLocked()
}
