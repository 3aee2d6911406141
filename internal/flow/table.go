package flow

import (
	"sync"
	"time"
)

// Table maps correlation tokens to pending flows. Insert, Take and the expiry
// timers all go through one mutex, so at most one caller ever observes a
// given flow leaving the table.
type Table struct {
	mu       sync.Mutex
	flows    map[string]*PendingFlow
	closed   bool
	onExpire func(*PendingFlow)
}

// NewTable returns an empty table. A flow whose deadline fires while it is
// still pending is resumed with ErrTimeout, then passed to onExpire (which may
// be nil) outside the lock.
func NewTable(onExpire func(*PendingFlow)) *Table {
	return &Table{
		flows:    make(map[string]*PendingFlow),
		onExpire: onExpire,
	}
}

// Insert registers a flow and arms its deadline timer.
func (t *Table) Insert(p *PendingFlow) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, exists := t.flows[p.Token]; exists {
		return ErrDuplicateToken
	}

	t.flows[p.Token] = p

	if !p.Deadline.IsZero() {
		token := p.Token
		p.timer = time.AfterFunc(time.Until(p.Deadline), func() {
			t.expire(token)
		})
	}

	return nil
}

// Take removes the flow for token if it is still pending. Take and TakeIf are
// the only ways a flow leaves the table.
func (t *Table) Take(token string) (*PendingFlow, bool) {
	return t.TakeIf(token, nil)
}

// TakeIf is Take guarded by accept, which runs under the lock. A flow that is
// not accepted stays pending.
func (t *Table) TakeIf(token string, accept func(*PendingFlow) bool) (*PendingFlow, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.flows[token]
	if !ok {
		return nil, false
	}
	if accept != nil && !accept(p) {
		return nil, false
	}
	delete(t.flows, token)
	return p, true
}

func (t *Table) Contains(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.flows[token]
	return ok
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.flows)
}

// Close empties the table, refuses further inserts and returns the flows that
// were still pending.
func (t *Table) Close() []*PendingFlow {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	pending := make([]*PendingFlow, 0, len(t.flows))
	for token, p := range t.flows {
		pending = append(pending, p)
		delete(t.flows, token)
	}
	return pending
}

func (t *Table) expire(token string) {
	p, ok := t.Take(token)
	if !ok {
		return
	}
	p.resume(nil, ErrTimeout)
	if t.onExpire != nil {
		t.onExpire(p)
	}
}
