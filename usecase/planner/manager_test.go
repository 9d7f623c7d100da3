package planner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/repository/memory"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestManagerReusesPlannerPerUser(t *testing.T) {
	mem := memory.NewStore()
	m := NewManager(mem.Activities(), mem.Sessions(), ManagerConfig{})
	defer func() { _ = m.Shutdown(context.Background()) }()

	first, err := m.For(context.Background(), "u1")
	require.NoError(t, err)
	second, err := m.For(context.Background(), "u1")
	require.NoError(t, err)
	other, err := m.For(context.Background(), "u2")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, m.Len())
}

func TestManagerEvictsIdlePlannersAndCommits(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "a1", Date: day, Type: domain.ActivityTypeCustom, Status: domain.StatusPlanned},
	})
	clk := &manualClock{now: clock}
	m := NewManager(mem.Activities(), mem.Sessions(), ManagerConfig{
		IdleTTL: time.Minute,
		Options: Options{UndoWindow: time.Hour, Now: clk.Now},
	})
	ctx := context.Background()

	p, err := m.For(ctx, "u1")
	require.NoError(t, err)
	_, err = p.StageDeleteActivity(ctx, "a1")
	require.NoError(t, err)

	assert.Zero(t, m.EvictIdle(ctx))
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, m.EvictIdle(ctx))
	assert.Zero(t, m.Len())

	persisted, err := mem.Activities().List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, persisted)
	require.NoError(t, m.Shutdown(ctx))
}
