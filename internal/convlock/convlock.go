// Package convlock serializes units of work per conversation. Work items for
// the same key run one at a time in acquisition order; different keys never
// block each other.
package convlock

import "sync"

type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	active  bool
	waiters []chan struct{}
}

// Ticket is one queued slot for a key. Wait blocks until the slot is granted;
// Release hands the slot to the next waiter in line.
type Ticket struct {
	table *Table
	key   string
	ready chan struct{}
}

func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Acquire registers a slot for key. Registration order is grant order, so a
// caller that needs arrival-order processing must call Acquire before handing
// the work to a goroutine.
func (t *Table) Acquire(key string) *Ticket {
	ticket := &Ticket{table: t, key: key, ready: make(chan struct{})}

	t.mu.Lock()
	defer t.mu.Unlock()
	slot := t.entries[key]
	if slot == nil {
		slot = &entry{}
		t.entries[key] = slot
	}
	if !slot.active {
		slot.active = true
		close(ticket.ready)
		return ticket
	}
	slot.waiters = append(slot.waiters, ticket.ready)
	return ticket
}

func (tk *Ticket) Wait() {
	<-tk.ready
}

// Release passes the slot to the next queued waiter, or removes the key's
// entry entirely when nobody is waiting so the table does not grow with
// conversation count.
func (tk *Ticket) Release() {
	tk.table.mu.Lock()
	defer tk.table.mu.Unlock()
	slot := tk.table.entries[tk.key]
	if slot == nil {
		return
	}
	if len(slot.waiters) > 0 {
		next := slot.waiters[0]
		slot.waiters = slot.waiters[1:]
		close(next)
		return
	}
	slot.active = false
	delete(tk.table.entries, tk.key)
}

// Do runs work while holding the slot for key. The slot is released even when
// work fails; the error is returned to the caller untouched.
func (t *Table) Do(key string, work func() error) error {
	ticket := t.Acquire(key)
	ticket.Wait()
	defer ticket.Release()
	return work()
}

// Len reports how many keys currently hold or queue work.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
