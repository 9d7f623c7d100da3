package undo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/studyplanner/domain"
)

type recorder struct {
	mu       sync.Mutex
	undone   []interface{}
	commits  atomic.Int32
	snapshot interface{}
}

func (r *recorder) entry(id string) Entry {
	return Entry{
		ID:       id,
		Kind:     "activity.delete",
		Snapshot: id + "-snapshot",
		OnUndo: func(ctx context.Context, snapshot interface{}) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.undone = append(r.undone, snapshot)
			return nil
		},
		OnCommit: func(ctx context.Context, snapshot interface{}) error {
			r.commits.Add(1)
			r.mu.Lock()
			r.snapshot = snapshot
			r.mu.Unlock()
			return nil
		},
	}
}

func TestUndoBeforeDeadline(t *testing.T) {
	rec := &recorder{}
	buf := New(WithWindow(50 * time.Millisecond))

	_, err := buf.Stage(rec.entry("a1"))
	require.NoError(t, err)
	require.NoError(t, buf.Undo(context.Background(), "a1"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []interface{}{"a1-snapshot"}, rec.undone)
	assert.Zero(t, rec.commits.Load(), "undone entries never commit")
	assert.Zero(t, buf.Len())
}

func TestCommitFiresOnceAfterWindow(t *testing.T) {
	rec := &recorder{}
	buf := New(WithWindow(30 * time.Millisecond))

	_, err := buf.Stage(rec.entry("a1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.commits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), rec.commits.Load())

	err = buf.Undo(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrUndoNotFound)
	assert.Empty(t, rec.undone)
}

func TestManualCommitCancelsTimer(t *testing.T) {
	rec := &recorder{}
	buf := New(WithWindow(30 * time.Millisecond))

	_, err := buf.Stage(rec.entry("a1"))
	require.NoError(t, err)
	require.NoError(t, buf.Commit(context.Background(), "a1"))
	assert.Equal(t, int32(1), rec.commits.Load())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), rec.commits.Load())
	assert.ErrorIs(t, buf.Commit(context.Background(), "a1"), domain.ErrUndoNotFound)
}

func TestRestageReplacesTimer(t *testing.T) {
	first := &recorder{}
	second := &recorder{}
	buf := New(WithWindow(40 * time.Millisecond))

	_, err := buf.Stage(first.entry("a1"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = buf.Stage(second.entry("a1"))
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Len())

	require.Eventually(t, func() bool { return second.commits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, first.commits.Load(), "replaced entry must not commit")
	assert.Equal(t, int32(1), second.commits.Load())
}

func TestIndependentTimersPerID(t *testing.T) {
	rec := &recorder{}
	buf := New(WithWindow(40 * time.Millisecond))

	_, err := buf.Stage(rec.entry("a1"))
	require.NoError(t, err)
	_, err = buf.Stage(rec.entry("a2"))
	require.NoError(t, err)
	require.NoError(t, buf.Undo(context.Background(), "a1"))

	require.Eventually(t, func() bool { return rec.commits.Load() == 1 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "a2-snapshot", rec.snapshot)
	assert.Equal(t, []interface{}{"a1-snapshot"}, rec.undone)
}

func TestCurrentTracksLatestPending(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	buf := New(WithWindow(time.Hour), WithClock(func() time.Time { return now }))
	defer func() { _ = buf.Flush(context.Background()) }()

	_, ok := buf.Current()
	assert.False(t, ok)

	_, err := buf.Stage(rec.entry("a1"))
	require.NoError(t, err)
	pending, err := buf.Stage(rec.entry("a2"))
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), pending.Deadline)

	current, ok := buf.Current()
	require.True(t, ok)
	assert.Equal(t, "a2", current.ID)

	require.NoError(t, buf.Undo(context.Background(), "a2"))
	current, ok = buf.Current()
	require.True(t, ok)
	assert.Equal(t, "a1", current.ID)

	assert.Len(t, buf.Pending(), 1)
}

func TestFlushCommitsEverything(t *testing.T) {
	rec := &recorder{}
	buf := New(WithWindow(time.Hour))
	var notified atomic.Int32
	unsubscribe := buf.Subscribe(func() { notified.Add(1) })
	defer unsubscribe()

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := buf.Stage(rec.entry(id))
		require.NoError(t, err)
	}
	require.NoError(t, buf.Flush(context.Background()))

	assert.Equal(t, int32(3), rec.commits.Load())
	assert.Zero(t, buf.Len())
	assert.Equal(t, int32(4), notified.Load())
}

func TestCallbackErrorsPropagate(t *testing.T) {
	boom := errors.New("persist failed")
	buf := New(WithWindow(time.Hour))
	_, err := buf.Stage(Entry{
		ID:       "s1",
		OnCommit: func(ctx context.Context, snapshot interface{}) error { return boom },
	})
	require.NoError(t, err)

	assert.ErrorIs(t, buf.Commit(context.Background(), "s1"), boom)
	assert.Zero(t, buf.Len())
}

func TestStageRejectsIncompleteEntries(t *testing.T) {
	buf := New()
	_, err := buf.Stage(Entry{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	_, err = buf.Stage(Entry{OnCommit: func(context.Context, interface{}) error { return nil }})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.Equal(t, DefaultWindow, buf.Window())
}
