package transport

import (
	"math"
	"time"

	"github.com/orchestra-mcp/chatsocket/src/types"
)

// BackoffDelay returns base × 2^(attempt-1). Attempts below 1 are treated as
// the first attempt. The result saturates at the largest Duration.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift >= 63 || base > time.Duration(math.MaxInt64>>uint(shift)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(shift)
}

// reconnector tracks retry attempts and the pending retry timer. It is not
// safe for concurrent use; the Manager guards it with its own mutex.
type reconnector struct {
	clock       types.Clock
	base        time.Duration
	maxAttempts int

	attempt int
	timer   types.Timer
}

func newReconnector(clock types.Clock, base time.Duration, maxAttempts int) *reconnector {
	return &reconnector{clock: clock, base: base, maxAttempts: maxAttempts}
}

// schedule arms fn after the next backoff delay. It returns ok=false once
// the attempt budget is spent.
func (r *reconnector) schedule(fn func()) (attempt int, delay time.Duration, ok bool) {
	if r.attempt >= r.maxAttempts {
		return r.attempt, 0, false
	}
	r.cancel()
	r.attempt++
	delay = BackoffDelay(r.base, r.attempt)
	r.timer = r.clock.AfterFunc(delay, fn)
	return r.attempt, delay, true
}

// fired clears the timer reference after the callback ran.
func (r *reconnector) fired() {
	r.timer = nil
}

func (r *reconnector) cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *reconnector) reset() {
	r.attempt = 0
}

func (r *reconnector) pending() bool {
	return r.timer != nil
}
