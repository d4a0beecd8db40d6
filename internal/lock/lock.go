package lock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds lock acquisition when the caller does not override it.
const DefaultTimeout = 30 * time.Second

// ErrTimeout means the bounded wait elapsed before the lock became
// grantable. The caller may retry with backoff; no lock state remains
// from the failed attempt.
var ErrTimeout = errors.New("lock acquisition timed out")

// Mode selects shared or exclusive access to a resource.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// waiter is a queued acquisition attempt. granted is written under the
// manager mutex before ready is closed, so a timeout that races a grant
// can detect it and undo the grant.
type waiter struct {
	mode    Mode
	ready   chan struct{}
	granted bool
}

// resource tracks the holders and FIFO wait queue for one canonical path.
type resource struct {
	mode       Mode
	holders    int
	acquiredAt time.Time
	queue      []*waiter
}

func (r *resource) grantable(mode Mode) bool {
	if r.holders == 0 {
		return true
	}
	return mode == Shared && r.mode == Shared
}

// grantLocked admits the waiters at the head of the queue that are
// compatible with each other, in arrival order. Caller holds m.mu.
func (r *resource) grantLocked() {
	for len(r.queue) > 0 {
		w := r.queue[0]
		if !r.grantable(w.mode) {
			return
		}
		r.queue = r.queue[1:]
		if r.holders == 0 {
			r.mode = w.mode
			r.acquiredAt = time.Now()
		}
		r.holders++
		w.granted = true
		close(w.ready)
		if w.mode == Exclusive {
			return
		}
	}
}

// Stats describes the observable lock state of one resource.
type Stats struct {
	Mode     Mode
	Holders  int
	Waiters  int
	HeldFor  time.Duration
	Resource string
}

// Manager owns the in-memory lock table. It is the only component that
// mutates it.
type Manager struct {
	mu        sync.Mutex
	resources map[string]*resource
	log       *slog.Logger
}

// NewManager creates a lock manager. A nil logger falls back to
// slog.Default().
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		resources: make(map[string]*resource),
		log:       log,
	}
}

// Handle represents one granted acquisition. Release it on every exit
// path of the owning scope, normally via defer.
type Handle struct {
	m        *Manager
	resource string
	mode     Mode
	id       string

	mu       sync.Mutex
	released bool
}

// ID returns the handle's identifier, used for log correlation.
func (h *Handle) ID() string { return h.id }

// Mode returns the mode the handle was granted in.
func (h *Handle) Mode() Mode { return h.mode }

// Resource returns the canonical path the handle locks.
func (h *Handle) Resource() string { return h.resource }

// Release gives the lock back. A handle releases exactly once; releasing
// it again is a programmer error and panics rather than being silently
// ignored.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		panic("lock: handle released twice for " + h.resource)
	}
	h.released = true
	h.mu.Unlock()

	h.m.release(h.resource)
}

// Acquire suspends the caller until the requested mode is grantable for
// the resource, the timeout elapses, or ctx is cancelled. Zero or negative
// timeout selects DefaultTimeout. On timeout or cancellation no lock state
// is left behind for this attempt.
func (m *Manager) Acquire(ctx context.Context, resourcePath string, mode Mode, timeout time.Duration) (*Handle, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	h := &Handle{
		m:        m,
		resource: resourcePath,
		mode:     mode,
		id:       uuid.NewString(),
	}

	m.mu.Lock()
	res, ok := m.resources[resourcePath]
	if !ok {
		res = &resource{}
		m.resources[resourcePath] = res
	}

	// Fast path: nothing queued ahead of us and the mode is compatible.
	if len(res.queue) == 0 && res.grantable(mode) {
		if res.holders == 0 {
			res.mode = mode
			res.acquiredAt = time.Now()
		}
		res.holders++
		m.mu.Unlock()
		return h, nil
	}

	w := &waiter{mode: mode, ready: make(chan struct{})}
	res.queue = append(res.queue, w)
	waiters := len(res.queue)
	m.mu.Unlock()

	m.log.Debug("lock wait",
		"resource", resourcePath, "mode", mode.String(),
		"waiters", waiters, "handle", h.id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return h, nil
	case <-timer.C:
		if m.abandonWaiter(resourcePath, w) {
			// Granted in the window between timeout and cleanup.
			return h, nil
		}
		m.log.Debug("lock timeout",
			"resource", resourcePath, "mode", mode.String(),
			"timeout", timeout, "handle", h.id)
		return nil, ErrTimeout
	case <-ctx.Done():
		if m.abandonWaiter(resourcePath, w) {
			return h, nil
		}
		return nil, ctx.Err()
	}
}

// abandonWaiter removes w from the resource queue. If w was granted
// before cleanup could run, the grant stands and true is returned so the
// caller keeps the handle instead of leaking the lock.
func (m *Manager) abandonWaiter(resourcePath string, w *waiter) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.granted {
		return true
	}
	res := m.resources[resourcePath]
	if res == nil {
		return false
	}
	for i, queued := range res.queue {
		if queued == w {
			res.queue = append(res.queue[:i], res.queue[i+1:]...)
			break
		}
	}
	// Waiters queued behind w may have become grantable.
	res.grantLocked()
	m.dropIfIdleLocked(resourcePath, res)
	return false
}

func (m *Manager) release(resourcePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.resources[resourcePath]
	if res == nil || res.holders == 0 {
		panic("lock: release of unheld resource " + resourcePath)
	}
	res.holders--
	if res.holders == 0 {
		res.grantLocked()
	}
	m.dropIfIdleLocked(resourcePath, res)
}

func (m *Manager) dropIfIdleLocked(resourcePath string, res *resource) {
	if res.holders == 0 && len(res.queue) == 0 {
		delete(m.resources, resourcePath)
	}
}

// Stats reports the lock state of one resource. ok is false when the
// resource is currently unlocked and has no waiters.
func (m *Manager) Stats(resourcePath string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.resources[resourcePath]
	if !ok {
		return Stats{Resource: resourcePath}, false
	}
	return m.statsLocked(resourcePath, res), true
}

// Snapshot reports the lock state of every currently contended resource.
func (m *Manager) Snapshot() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stats, 0, len(m.resources))
	for path, res := range m.resources {
		out = append(out, m.statsLocked(path, res))
	}
	return out
}

func (m *Manager) statsLocked(path string, res *resource) Stats {
	s := Stats{
		Resource: path,
		Mode:     res.mode,
		Holders:  res.holders,
		Waiters:  len(res.queue),
	}
	if res.holders > 0 {
		s.HeldFor = time.Since(res.acquiredAt)
	}
	return s
}
