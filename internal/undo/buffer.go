// Package undo stages destructive operations for a short window before committing them.
package undo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/observability"
)

// DefaultWindow is how long a staged operation can be undone.
const DefaultWindow = 5 * time.Second

// Callback receives the pre-image captured when the operation was staged.
type Callback func(ctx context.Context, snapshot interface{}) error

// Entry is a destructive operation awaiting undo or commit.
type Entry struct {
	ID       string
	Kind     string
	Snapshot interface{}
	OnUndo   Callback
	OnCommit Callback
}

// Pending describes a staged entry for display.
type Pending struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	StagedAt time.Time `json:"staged_at"`
	Deadline time.Time `json:"deadline"`
}

type staged struct {
	entry    Entry
	seq      uint64
	stagedAt time.Time
	deadline time.Time
	timer    *time.Timer
}

func (s *staged) pending() Pending {
	return Pending{ID: s.entry.ID, Kind: s.entry.Kind, StagedAt: s.stagedAt, Deadline: s.deadline}
}

type Option func(*Buffer)

func WithWindow(window time.Duration) Option {
	return func(b *Buffer) {
		if window > 0 {
			b.window = window
		}
	}
}

// WithCommitTimeout bounds the context handed to commits fired by the timer.
func WithCommitTimeout(timeout time.Duration) Option {
	return func(b *Buffer) {
		if timeout > 0 {
			b.commitTimeout = timeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Buffer) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// Buffer keeps one independent timer per entry id. Every staged entry resolves exactly once,
// either through its undo callback or its commit callback.
type Buffer struct {
	window        time.Duration
	commitTimeout time.Duration
	now           func() time.Time
	logger        *zap.Logger

	mu        sync.Mutex
	entries   map[string]*staged
	seq       uint64
	listeners map[int]func()
	nextID    int
}

func New(opts ...Option) *Buffer {
	b := &Buffer{
		window:        DefaultWindow,
		commitTimeout: 10 * time.Second,
		now:           time.Now,
		logger:        zap.NewNop(),
		entries:       make(map[string]*staged),
		listeners:     make(map[int]func()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Window returns the configured undo window.
func (b *Buffer) Window() time.Duration { return b.window }

// Stage arms the commit timer for entry. Staging an id that is already pending drops the
// earlier entry without running either of its callbacks.
func (b *Buffer) Stage(entry Entry) (Pending, error) {
	if entry.ID == "" || entry.OnCommit == nil {
		return Pending{}, domain.ErrInvalidPayload
	}
	if entry.Kind == "" {
		entry.Kind = "operation"
	}

	now := b.now()
	b.mu.Lock()
	if previous, ok := b.entries[entry.ID]; ok {
		previous.timer.Stop()
		b.logger.Debug("undo entry replaced", zap.String("id", entry.ID), zap.String("kind", previous.entry.Kind))
	}
	b.seq++
	s := &staged{
		entry:    entry,
		seq:      b.seq,
		stagedAt: now,
		deadline: now.Add(b.window),
	}
	s.timer = time.AfterFunc(b.window, func() { b.expire(s) })
	b.entries[entry.ID] = s
	b.mu.Unlock()

	observability.RecordUndo(entry.Kind, "staged")
	b.notify()
	return s.pending(), nil
}

// Undo reverses a pending entry. An unknown or already resolved id returns ErrUndoNotFound
// and has no effect.
func (b *Buffer) Undo(ctx context.Context, id string) error {
	s, ok := b.take(id, nil)
	if !ok {
		return domain.ErrUndoNotFound
	}
	b.notify()
	return b.run(ctx, s, "undone", s.entry.OnUndo)
}

// Commit finalizes a pending entry before its deadline.
func (b *Buffer) Commit(ctx context.Context, id string) error {
	s, ok := b.take(id, nil)
	if !ok {
		return domain.ErrUndoNotFound
	}
	b.notify()
	return b.run(ctx, s, "committed", s.entry.OnCommit)
}

// Flush commits every pending entry in staging order.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	all := make([]*staged, 0, len(b.entries))
	for id, s := range b.entries {
		s.timer.Stop()
		delete(b.entries, id)
		all = append(all, s)
	}
	b.mu.Unlock()
	if len(all) == 0 {
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	b.notify()

	var result error
	for _, s := range all {
		if err := b.run(ctx, s, "committed", s.entry.OnCommit); err != nil {
			result = errors.Join(result, err)
		}
	}
	return result
}

// Current returns the most recently staged entry that is still pending.
func (b *Buffer) Current() (Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var latest *staged
	for _, s := range b.entries {
		if latest == nil || s.seq > latest.seq {
			latest = s
		}
	}
	if latest == nil {
		return Pending{}, false
	}
	return latest.pending(), true
}

// Pending lists all staged entries, oldest first.
func (b *Buffer) Pending() []Pending {
	b.mu.Lock()
	all := make([]*staged, 0, len(b.entries))
	for _, s := range b.entries {
		all = append(all, s)
	}
	b.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]Pending, 0, len(all))
	for _, s := range all {
		out = append(out, s.pending())
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Subscribe registers fn to be called whenever the set of pending entries changes.
func (b *Buffer) Subscribe(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *Buffer) expire(s *staged) {
	if _, ok := b.take(s.entry.ID, s); !ok {
		return
	}
	b.notify()
	ctx, cancel := context.WithTimeout(context.Background(), b.commitTimeout)
	defer cancel()
	_ = b.run(ctx, s, "committed", s.entry.OnCommit)
}

// take removes the entry for id. When want is set, only that exact entry is removed, so a
// timer belonging to a replaced entry cannot resolve its successor.
func (b *Buffer) take(id string, want *staged) (*staged, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.entries[id]
	if !ok || (want != nil && s != want) {
		return nil, false
	}
	delete(b.entries, id)
	s.timer.Stop()
	return s, true
}

func (b *Buffer) run(ctx context.Context, s *staged, state string, cb Callback) error {
	observability.RecordUndo(s.entry.Kind, state)
	if cb == nil {
		return nil
	}
	if err := cb(ctx, s.entry.Snapshot); err != nil {
		b.logger.Error("undo callback failed",
			zap.String("id", s.entry.ID),
			zap.String("kind", s.entry.Kind),
			zap.String("state", state),
			zap.Error(err))
		return err
	}
	b.logger.Debug("undo entry resolved",
		zap.String("id", s.entry.ID),
		zap.String("kind", s.entry.Kind),
		zap.String("state", state))
	return nil
}

func (b *Buffer) notify() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
