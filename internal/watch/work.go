package watch

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"nodeadapter/internal/node"
)

// Poller starts a work-fetch session.
type Poller interface {
	Poll()
}

// WorkInfo summarizes the latest dispatched template.
type WorkInfo struct {
	Height            int64     `json:"height"`
	PreviousBlockHash string    `json:"previous_block_hash"`
	LongPoll          bool      `json:"long_poll"`
	ReceivedAt        time.Time `json:"received_at"`
}

// WorkMonitor is a node.Dispatcher that remembers the latest work and
// restarts the fetcher after a delay whenever its session ends.
type WorkMonitor struct {
	poller Poller
	delay  time.Duration
	clock  clock.Clock
	log    *zap.Logger

	mu       sync.Mutex
	last     *WorkInfo
	restarts int
	pending  *clock.Timer
	stopped  bool
	onWork   func(*node.BlockTemplate)
}

// NewWorkMonitor builds a monitor restarting p after delay. onWork, if not
// nil, receives every dispatched template.
func NewWorkMonitor(p Poller, delay time.Duration, clk clock.Clock, log *zap.Logger, onWork func(*node.BlockTemplate)) *WorkMonitor {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkMonitor{poller: p, delay: delay, clock: clk, log: log, onWork: onWork}
}

func (m *WorkMonitor) OnWorkFetcherConnectionError() {
	m.log.Warn("can't connect to node for work", zap.Duration("retry_in", m.delay))
	m.scheduleRestart()
}

func (m *WorkMonitor) OnWorkFetcherConnectionLost() {
	m.log.Warn("work fetcher lost connection", zap.Duration("retry_in", m.delay))
	m.scheduleRestart()
}

func (m *WorkMonitor) OnWorkFetcherNewWork(tmpl *node.BlockTemplate) {
	m.mu.Lock()
	m.last = &WorkInfo{
		Height:            tmpl.Height,
		PreviousBlockHash: tmpl.PreviousBlockHash,
		LongPoll:          tmpl.LongPollID != "",
		ReceivedAt:        tmpl.ReceivedAt,
	}
	m.mu.Unlock()
	if m.onWork != nil {
		m.onWork(tmpl)
	}
}

func (m *WorkMonitor) scheduleRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.pending != nil {
		return
	}
	m.pending = m.clock.AfterFunc(m.delay, func() {
		m.mu.Lock()
		m.pending = nil
		if m.stopped {
			m.mu.Unlock()
			return
		}
		m.restarts++
		m.mu.Unlock()
		m.poller.Poll()
	})
}

// Last returns the latest dispatched work, if any.
func (m *WorkMonitor) Last() (WorkInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return WorkInfo{}, false
	}
	return *m.last, true
}

// Restarts counts the sessions restarted after a failure.
func (m *WorkMonitor) Restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

// Stop cancels a pending restart and disables further ones.
func (m *WorkMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}
