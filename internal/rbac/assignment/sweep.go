package assignment

import (
	"context"
	"errors"
	"time"

	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/repository"
)

// SweepExpired deactivates every active assignment whose validity window or
// delegation has ended, appending an expired history entry to each. It returns
// how many assignments this call expired. Each expiry is a conditional update,
// so repeated or concurrent sweeps never expire the same assignment twice.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	now := s.now()

	lapsed, err := s.store.FindAssignments(ctx, repository.AssignmentFilter{LapsedAt: &now})
	if err != nil {
		s.metrics.ObserveSweep(0, time.Since(start), err)
		return 0, err
	}

	count := 0
	for _, a := range lapsed {
		expired, err := s.expireOne(ctx, a, now)
		if err != nil {
			s.metrics.ObserveSweep(count, time.Since(start), err)
			return count, err
		}
		if expired {
			count++
		}
	}

	s.metrics.ObserveSweep(count, time.Since(start), nil)
	if count > 0 {
		s.logger.Info("expired assignments swept", "count", count)
	}
	return count, nil
}

func (s *Service) expireOne(ctx context.Context, a *model.Assignment, now time.Time) (bool, error) {
	reason := "validity ended"
	if a.Delegation != nil && a.Delegation.ExpiresAt != nil && !now.Before(*a.Delegation.ExpiresAt) {
		reason = "delegation ended"
	}
	entry := model.HistoryEntry{
		Action:    model.HistoryExpired,
		Actor:     model.SystemActor,
		Timestamp: now,
		Details:   details("reason", reason),
	}

	var expired bool
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.ExpireAssignment(ctx, a.ID, entry)
		if err != nil || !ok {
			return err
		}
		expired = true
		err = s.store.IncRoleStats(ctx, a.Role, 0, -1)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	})
	return expired, err
}
