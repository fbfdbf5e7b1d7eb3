// Package connectivity tracks whether the remote service is reachable and
// notifies subscribers on transitions. The monitor only observes; it never
// triggers work itself.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/example/fieldsync/internal/logging"
)

// probeTimeout bounds a single reachability check so a dead network cannot
// stall the watcher loop.
const probeTimeout = 3 * time.Second

// Prober answers a single question: is the remote reachable right now.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor polls a Prober and exposes the current online state plus an
// event stream of transitions via subscriber callbacks.
type Monitor struct {
	prober   Prober
	interval time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	subs   []func(online bool)

	resume chan struct{}
}

// NewMonitor constructs a Monitor and probes once to establish the initial
// state, bounded by the probe timeout.
func NewMonitor(ctx context.Context, prober Prober, interval time.Duration, log logging.Logger) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: interval,
		log:      log,
		resume:   make(chan struct{}, 1),
	}
	m.online = m.probe(ctx)
	return m
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn to be called on every online/offline transition.
// Callbacks run on the watcher goroutine and should return quickly.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Resume signals that the process regained foreground or the platform
// reported a network change; the watcher re-probes immediately instead of
// waiting for the next tick.
func (m *Monitor) Resume() {
	select {
	case m.resume <- struct{}{}:
	default:
	}
}

// Start runs the watcher loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-m.resume:
			m.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return m.prober.Ping(ctx) == nil
}

func (m *Monitor) check(ctx context.Context) {
	online := m.probe(ctx)

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.log.Info(ctx, "connectivity restored")
	} else {
		m.log.Info(ctx, "connectivity lost")
	}
	for _, fn := range subs {
		fn(online)
	}
}
