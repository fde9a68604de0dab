package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"scopedrbac/internal/rbac/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssignment(id, user, role string, primary bool) *model.Assignment {
	now := time.Now()
	return &model.Assignment{
		ID:             id,
		UserID:         user,
		Role:           role,
		Active:         true,
		IsPrimary:      primary,
		ApprovalStatus: model.ApprovalApproved,
		ValidFrom:      now.Add(-time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryRepository_ActivePairIsUnique(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertAssignment(ctx, newAssignment("a1", "u1", "editor", false)))
	err := repo.InsertAssignment(ctx, newAssignment("a2", "u1", "editor", false))
	assert.ErrorIs(t, err, ErrDuplicate)

	// An inactive record does not block a new active one.
	inactive := newAssignment("a3", "u2", "editor", false)
	inactive.Active = false
	require.NoError(t, repo.InsertAssignment(ctx, inactive))
	assert.NoError(t, repo.InsertAssignment(ctx, newAssignment("a4", "u2", "editor", false)))
}

func TestMemoryRepository_SinglePrimary(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertAssignment(ctx, newAssignment("a1", "u1", "editor", true)))
	assert.ErrorIs(t, repo.InsertAssignment(ctx, newAssignment("a2", "u1", "viewer", true)), ErrDuplicate)

	n, err := repo.ClearPrimary(ctx, "u1", "a2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, repo.InsertAssignment(ctx, newAssignment("a2", "u1", "viewer", true)))

	a1, err := repo.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, a1.IsPrimary)
	require.Len(t, a1.History, 1)
	assert.Equal(t, model.HistoryModified, a1.History[0].Action)
}

func TestMemoryRepository_TxRollback(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.InsertRole(ctx, &model.Role{Name: "editor", Active: true}))

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.IncRoleStats(ctx, "editor", 1, 1))
		require.NoError(t, repo.InsertAssignment(ctx, newAssignment("a1", "u1", "editor", false)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	role, err := repo.GetRole(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, model.RoleStats{}, role.Stats)

	_, err = repo.GetAssignment(ctx, "a1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryRepository_ExpireIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a := newAssignment("a1", "u1", "editor", true)
	past := time.Now().Add(-time.Minute)
	a.ValidUntil = &past
	require.NoError(t, repo.InsertAssignment(ctx, a))

	now := time.Now()
	lapsed, err := repo.FindAssignments(ctx, AssignmentFilter{LapsedAt: &now})
	require.NoError(t, err)
	require.Len(t, lapsed, 1)

	entry := model.HistoryEntry{Action: model.HistoryExpired, Actor: model.SystemActor, Timestamp: now}
	ok, err := repo.ExpireAssignment(ctx, "a1", entry)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExpireAssignment(ctx, "a1", entry)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StateExpired, got.State())
	assert.False(t, got.IsPrimary)
	assert.Len(t, got.History, 1)

	lapsed, err = repo.FindAssignments(ctx, AssignmentFilter{LapsedAt: &now})
	require.NoError(t, err)
	assert.Empty(t, lapsed)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.InsertPermission(ctx, &model.Permission{Name: "doc.write.global", Active: true, Implies: []string{"doc.read.global"}}))

	p, err := repo.GetPermission(ctx, "doc.write.global")
	require.NoError(t, err)
	p.Implies[0] = "tampered"

	again, err := repo.GetPermission(ctx, "doc.write.global")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.read.global"}, again.Implies)
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	repo := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.FindAssignments(ctx, AssignmentFilter{UserID: "u1"})
	assert.ErrorIs(t, err, model.ErrDependency)
	assert.True(t, model.IsRetryable(err))
}
