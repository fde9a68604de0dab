package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"scopedrbac/internal/rbac/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Runs against a real replica set; transactions need one.
func setupMongo(t *testing.T) *MongoRepository {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database("rbac_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := NewMongoRepository(db, CollectionNames{
		Permissions: "rbac_permissions",
		Roles:       "rbac_roles",
		Assignments: "rbac_assignments",
	})
	require.NoError(t, repo.EnsureIndexes(ctx))
	return repo
}

func TestMongoRepository_Indexes(t *testing.T) {
	repo := setupMongo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertAssignment(ctx, newAssignment(uuid.NewString(), "u1", "editor", true)))
	assert.ErrorIs(t, repo.InsertAssignment(ctx, newAssignment(uuid.NewString(), "u1", "editor", false)), ErrDuplicate)
	assert.ErrorIs(t, repo.InsertAssignment(ctx, newAssignment(uuid.NewString(), "u1", "viewer", true)), ErrDuplicate)

	require.NoError(t, repo.InsertPermission(ctx, &model.Permission{Name: "doc.read.global", Active: true}))
	assert.ErrorIs(t, repo.InsertPermission(ctx, &model.Permission{Name: "doc.read.global"}), ErrDuplicate)
}

func TestMongoRepository_TxRollback(t *testing.T) {
	repo := setupMongo(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertRole(ctx, &model.Role{Name: "editor", Active: true}))

	err := repo.WithTx(ctx, func(ctx context.Context) error {
		if err := repo.IncRoleStats(ctx, "editor", 1, 1); err != nil {
			return err
		}
		return model.ConflictErrorf("abort")
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	role, err := repo.GetRole(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, int64(0), role.Stats.ActiveUsers)

	_, err = repo.GetRole(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMongoRepository_Expire(t *testing.T) {
	repo := setupMongo(t)
	ctx := context.Background()

	a := newAssignment(uuid.NewString(), "u1", "editor", false)
	past := time.Now().Add(-time.Minute)
	a.ValidUntil = &past
	require.NoError(t, repo.InsertAssignment(ctx, a))

	now := time.Now()
	lapsed, err := repo.FindAssignments(ctx, AssignmentFilter{LapsedAt: &now})
	require.NoError(t, err)
	require.Len(t, lapsed, 1)

	entry := model.HistoryEntry{Action: model.HistoryExpired, Actor: model.SystemActor, Timestamp: now}
	ok, err := repo.ExpireAssignment(ctx, a.ID, entry)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ExpireAssignment(ctx, a.ID, entry)
	require.NoError(t, err)
	assert.False(t, ok)
}
