package buffer

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "buffer.db"), "pending")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func activitiesItem(userID, payload string) Item {
	return Item{
		ID:        ActivitiesKey(userID),
		UserID:    userID,
		Entity:    EntityActivities,
		Operation: OperationReplace,
		Data:      json.RawMessage(payload),
	}
}

func TestEnqueueCoalescesByID(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.Enqueue(activitiesItem("u1", `[]`)))
	require.NoError(t, store.Enqueue(activitiesItem("u1", `[{"id":"a1"}]`)))
	require.NoError(t, store.Enqueue(activitiesItem("u2", `[]`)))

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	item, ok, err := store.Lookup(ActivitiesKey("u1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"a1"}]`, string(item.Data))
}

func TestGetBatchOrdersByPriorityThenTime(t *testing.T) {
	store := openStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(Item{ID: "late", Priority: 3, Timestamp: base.Add(time.Second)}))
	require.NoError(t, store.Enqueue(Item{ID: "early", Priority: 3, Timestamp: base}))
	require.NoError(t, store.Enqueue(Item{ID: "urgent", Priority: 1, Timestamp: base.Add(time.Hour)}))

	items, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"urgent", "early", "late"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestRemoveKeepsNewerVersion(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Enqueue(activitiesItem("u1", `[]`)))

	batch, err := store.GetBatch(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, store.Enqueue(activitiesItem("u1", `[{"id":"a2"}]`)))
	require.NoError(t, store.Remove(batch[0]))

	item, ok, err := store.Lookup(ActivitiesKey("u1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"a2"}]`, string(item.Data))

	requeued, err := store.Requeue(batch[0])
	require.NoError(t, err)
	assert.False(t, requeued)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestFindByPrefixAndDiscard(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Enqueue(Item{ID: SessionKey("u1", "s1"), Entity: EntitySession, Operation: OperationUpsert}))
	require.NoError(t, store.Enqueue(Item{ID: SessionKey("u1", "s2"), Entity: EntitySession, Operation: OperationDelete}))
	require.NoError(t, store.Enqueue(Item{ID: SessionKey("u10", "s3"), Entity: EntitySession, Operation: OperationUpsert}))

	items, err := store.Find(SessionPrefix("u1"))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, store.Discard(SessionKey("u1", "s1")))
	_, ok, err := store.Lookup(SessionKey("u1", "s1"))
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestCleanupDropsExpiredItems(t *testing.T) {
	store := openStore(t)
	now := time.Now()
	require.NoError(t, store.Enqueue(Item{ID: "old", Timestamp: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Enqueue(Item{ID: "fresh", Timestamp: now}))

	removed, err := store.Cleanup(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err := store.Lookup("old")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Lookup("fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnqueueRespectsLimit(t *testing.T) {
	store := openStore(t).WithLimit(1)

	require.NoError(t, store.Enqueue(activitiesItem("u1", `[]`)))
	require.NoError(t, store.Enqueue(activitiesItem("u1", `[{"id":"a1"}]`)), "coalescing does not grow the store")
	assert.ErrorIs(t, store.Enqueue(activitiesItem("u2", `[]`)), ErrFull)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}
