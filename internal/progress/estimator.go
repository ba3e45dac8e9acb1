// Package progress implements the estimated progress shown while a generation is in
// flight. The estimate is derived from wall-clock time against a nominal duration and
// knows nothing about the real request; callers pin it with Complete when the request
// actually succeeds.
package progress

import (
	"sync"
	"time"
)

const DefaultInterval = 100 * time.Millisecond

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseFinishing Phase = "finishing"
	PhaseComplete  Phase = "complete"
)

type Snapshot struct {
	Fraction  float64       `json:"fraction"`
	Percent   int           `json:"percent"`
	Phase     Phase         `json:"phase"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
}

// Estimator is safe for concurrent use. At most one ticker goroutine exists at a time.
type Estimator struct {
	mu        sync.Mutex
	nominal   time.Duration
	startedAt time.Time
	fraction  float64
	phase     Phase

	interval time.Duration
	onTick   func(Snapshot)
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

// New returns an idle estimator. onTick, when non-nil, receives a snapshot from the
// ticker goroutine on every interval.
func New(interval time.Duration, onTick func(Snapshot)) *Estimator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Estimator{
		phase:    PhaseIdle,
		interval: interval,
		onTick:   onTick,
		now:      time.Now,
	}
}

// Start resets the estimate to zero and begins ticking. A ticker left over from a
// previous run is torn down first.
func (e *Estimator) Start(nominal time.Duration) {
	e.Stop()

	if nominal <= 0 {
		nominal = time.Second
	}

	e.mu.Lock()
	e.nominal = nominal
	e.startedAt = e.now()
	e.fraction = 0
	e.phase = PhaseRunning
	stop := make(chan struct{})
	done := make(chan struct{})
	e.stop, e.done = stop, done
	e.mu.Unlock()

	go e.run(stop, done)
}

func (e *Estimator) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := e.Snapshot()
			if e.onTick != nil {
				e.onTick(snap)
			}
		}
	}
}

// Stop tears down the ticker and waits for it to exit. The last estimate is kept.
func (e *Estimator) Stop() {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Complete stops the ticker and pins the estimate at 100%.
func (e *Estimator) Complete() {
	e.Stop()

	e.mu.Lock()
	e.fraction = 1
	e.phase = PhaseComplete
	e.mu.Unlock()
}

// Reset stops the ticker and returns to idle at zero.
func (e *Estimator) Reset() {
	e.Stop()

	e.mu.Lock()
	e.fraction = 0
	e.phase = PhaseIdle
	e.mu.Unlock()
}

func (e *Estimator) CurrentFraction() float64 {
	return e.Snapshot().Fraction
}

func (e *Estimator) Percent() int {
	return e.Snapshot().Percent
}

func (e *Estimator) Phase() Phase {
	return e.Snapshot().Phase
}

func (e *Estimator) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}

func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var elapsed time.Duration
	if e.phase == PhaseRunning || e.phase == PhaseFinishing {
		elapsed = e.now().Sub(e.startedAt)
		sampled := float64(elapsed) / float64(e.nominal)
		if sampled > 1 {
			sampled = 1
		}
		// never move backwards, even if the clock does
		if sampled > e.fraction {
			e.fraction = sampled
		}
		if elapsed >= e.nominal {
			e.phase = PhaseFinishing
		}
	}

	remaining := time.Duration(0)
	if e.phase == PhaseRunning {
		remaining = e.nominal - elapsed
	}

	return Snapshot{
		Fraction:  e.fraction,
		Percent:   int(e.fraction * 100),
		Phase:     e.phase,
		Elapsed:   elapsed,
		Remaining: remaining,
	}
}
