package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"scopedrbac/internal/rbac/model"

	"github.com/stretchr/testify/assert"
)

var fastPolicy = RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxRetries: 3}

func TestRetryIdempotent_RetriesDependencyErrors(t *testing.T) {
	calls := 0
	err := RetryIdempotent(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		if calls < 3 {
			return model.DependencyError("find", errors.New("connection reset"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryIdempotent_StopsOnOtherKinds(t *testing.T) {
	calls := 0
	err := RetryIdempotent(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		return model.ConflictErrorf("already exists")
	})
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, 1, calls)
}

func TestRetryIdempotent_GivesUp(t *testing.T) {
	calls := 0
	err := RetryIdempotent(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		return model.DependencyError("find", errors.New("timeout"))
	})
	assert.ErrorIs(t, err, model.ErrDependency)
	assert.Equal(t, 4, calls)
}
