package transport

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chatsocket/src/types"
)

// heartbeat sends a ping every interval while the connection is open. Each
// start begins a new epoch so timers armed for an earlier connection are
// inert.
type heartbeat struct {
	clock    types.Clock
	interval time.Duration
	beat     func()
	logger   zerolog.Logger

	mu       sync.Mutex
	epoch    uint64
	running  bool
	timer    types.Timer
	lastPong time.Time
}

func newHeartbeat(clock types.Clock, interval time.Duration, beat func(), logger zerolog.Logger) *heartbeat {
	return &heartbeat{
		clock:    clock,
		interval: interval,
		beat:     beat,
		logger:   logger,
	}
}

func (hb *heartbeat) start() {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.stopLocked()
	hb.epoch++
	hb.running = true
	hb.armLocked(hb.epoch)
}

func (hb *heartbeat) stop() {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.stopLocked()
}

func (hb *heartbeat) stopLocked() {
	hb.running = false
	if hb.timer != nil {
		hb.timer.Stop()
		hb.timer = nil
	}
}

func (hb *heartbeat) armLocked(epoch uint64) {
	hb.timer = hb.clock.AfterFunc(hb.interval, func() { hb.tick(epoch) })
}

func (hb *heartbeat) tick(epoch uint64) {
	hb.mu.Lock()
	if !hb.running || epoch != hb.epoch {
		hb.mu.Unlock()
		return
	}
	hb.timer = nil
	hb.mu.Unlock()

	hb.beat()

	hb.mu.Lock()
	defer hb.mu.Unlock()
	if hb.running && epoch == hb.epoch && hb.timer == nil {
		hb.armLocked(epoch)
	}
}

func (hb *heartbeat) ack(at time.Time) {
	hb.mu.Lock()
	hb.lastPong = at
	hb.mu.Unlock()
	hb.logger.Trace().Time("at", at).Msg("pong received")
}

func (hb *heartbeat) last() time.Time {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return hb.lastPong
}

func (hb *heartbeat) active() bool {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return hb.running
}
