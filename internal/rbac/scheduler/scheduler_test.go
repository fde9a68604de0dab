package scheduler

import (
	"context"
	"testing"
	"time"

	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

var fastRetry = util.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxRetries: 3}

func TestRunOnce_RetriesDependencyErrors(t *testing.T) {
	sw := &mockSweeper{}
	sw.On("SweepExpired", mock.Anything).Return(2, model.DependencyError("expire", assert.AnError)).Once()
	sw.On("SweepExpired", mock.Anything).Return(3, nil).Once()

	s := New(sw, Options{Schedule: "@every 1h", Retry: fastRetry})
	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	sw.AssertExpectations(t)
}

func TestRunOnce_DoesNotRetryOtherErrors(t *testing.T) {
	sw := &mockSweeper{}
	sw.On("SweepExpired", mock.Anything).Return(0, model.ValidationErrorf("bad")).Once()

	s := New(sw, Options{Schedule: "@every 1h", Retry: fastRetry})
	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, model.ErrValidation)
	sw.AssertNumberOfCalls(t, "SweepExpired", 1)
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(&mockSweeper{}, Options{Schedule: "not a schedule"})
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	sw := &mockSweeper{}
	sw.On("SweepExpired", mock.Anything).Return(0, nil).Maybe()

	s := New(sw, Options{Schedule: "@every 1h", Retry: fastRetry})
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
