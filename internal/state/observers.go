// Package state holds the per-user in-memory copies of the activity collection and the
// session registry, applies mutations optimistically and persists them.
package state

import (
	"fmt"
	"sync"

	"github.com/fastygo/studyplanner/domain"
)

type observers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (o *observers) subscribe(fn func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func())
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	}
}

// notify must be called without holding the owning store's lock.
func (o *observers) notify() {
	o.mu.Lock()
	fns := make([]func(), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func notPersisted(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrNotPersisted, err)
}
