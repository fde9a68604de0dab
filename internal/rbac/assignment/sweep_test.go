package assignment

import (
	"context"
	"sync"
	"testing"
	"time"

	"scopedrbac/internal/rbac/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := f.clock.Now()

	until := now.Add(time.Hour)
	expiring, err := f.svc.Assign(ctx, "u1", "editor", "system", model.AssignOptions{ValidUntil: &until, IsPrimary: true})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, "u2", "editor", "system", model.AssignOptions{})
	require.NoError(t, err)
	delegationEnds := now.Add(2 * time.Hour)
	delegated, err := f.svc.Assign(ctx, "u3", "viewer", "system", model.AssignOptions{
		Delegation: &model.Delegation{OriginalHolder: "u9", OriginalRole: "viewer", ExpiresAt: &delegationEnds},
	})
	require.NoError(t, err)

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(3 * time.Hour)
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep has nothing left")

	got, err := f.svc.Get(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateExpired, got.State())
	assert.False(t, got.IsPrimary)
	last := got.History[len(got.History)-1]
	assert.Equal(t, model.HistoryExpired, last.Action)
	assert.Equal(t, model.SystemActor, last.Actor)

	got, err = f.svc.Get(ctx, delegated.ID)
	require.NoError(t, err)
	assert.Equal(t, "delegation ended", got.History[len(got.History)-1].Details["reason"])

	assert.Equal(t, model.RoleStats{TotalUsers: 2, ActiveUsers: 1}, f.stats(t, "editor"))
	assert.Equal(t, model.RoleStats{TotalUsers: 1, ActiveUsers: 0}, f.stats(t, "viewer"))
}

func TestSweepExpired_Concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	until := f.clock.Now().Add(time.Minute)
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		_, err := f.svc.Assign(ctx, u, "editor", "system", model.AssignOptions{ValidUntil: &until})
		require.NoError(t, err)
	}
	f.clock.Advance(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.svc.SweepExpired(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, total, "each assignment expires exactly once")
	assert.Equal(t, int64(0), f.stats(t, "editor").ActiveUsers)
}
