package scheduler

import "time"

// Clock supplies the current time. Implementations must be safe for
// concurrent use.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// WakeTimer is the single deferred callback a scheduler arms. Only the
// scheduler goroutine calls Reset and Stop.
type WakeTimer interface {
	// Reset arms the timer to fire once after d, replacing any armed time
	Reset(d time.Duration)

	// Stop disarms the timer
	Stop()

	// C delivers a value when the armed time is reached
	C() <-chan time.Time
}

type runtimeTimer struct {
	t *time.Timer
}

func newRuntimeTimer() *runtimeTimer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &runtimeTimer{t: t}
}

func (r *runtimeTimer) Reset(d time.Duration) {
	r.t.Reset(d)
}

func (r *runtimeTimer) Stop() {
	r.t.Stop()
}

func (r *runtimeTimer) C() <-chan time.Time {
	return r.t.C
}
