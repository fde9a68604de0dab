// Package assignment records which user holds which role, with scope, validity,
// overrides and a lifecycle history.
package assignment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"scopedrbac/internal/rbac/metrics"
	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/repository"
	"scopedrbac/internal/rbac/scope"
	"scopedrbac/internal/rbac/util"

	"github.com/google/uuid"
)

// Store is the datastore slice the assignment service needs.
type Store interface {
	repository.AssignmentStore
	GetRole(ctx context.Context, name string) (*model.Role, error)
	IncRoleStats(ctx context.Context, name string, totalDelta, activeDelta int64) error
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RoleAuthority answers the role constraints consulted on assignment.
type RoleAuthority interface {
	CanAssign(role *model.Role, assignerRoles ...string) bool
	HasCapacity(role *model.Role) bool
}

// PermissionSource resolves active permission definitions.
type PermissionSource interface {
	Get(ctx context.Context, name string) (*model.Permission, error)
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Clock   func() time.Time
	// ReadRetry bounds retries of read queries on dependency errors.
	ReadRetry util.RetryPolicy
}

type Service struct {
	store     Store
	roles     RoleAuthority
	perms     PermissionSource
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	readRetry util.RetryPolicy
}

func NewService(store Store, roles RoleAuthority, perms PermissionSource, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.ReadRetry == (util.RetryPolicy{}) {
		opts.ReadRetry = util.DefaultRetryPolicy
	}
	return &Service{
		store:     store,
		roles:     roles,
		perms:     perms,
		logger:    util.OrDefault(opts.Logger),
		metrics:   opts.Metrics,
		now:       opts.Clock,
		readRetry: opts.ReadRetry,
	}
}

// Assign gives userID the role. Assignment is transactional: the capacity and
// duplicate checks, the primary demotion, the insert and the role counters
// commit together. Plain assignment is never retried here.
func (s *Service) Assign(ctx context.Context, userID, roleName, assignedBy string, opts model.AssignOptions) (*model.Assignment, error) {
	userID, roleName = strings.TrimSpace(userID), normalize(roleName)
	if userID == "" || roleName == "" {
		return nil, model.ValidationErrorf("user and role are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var created *model.Assignment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.now()
		role, err := s.store.GetRole(ctx, roleName)
		if err != nil {
			return err
		}
		if !role.Active {
			return model.ValidationErrorf("role %q is not active", role.Name)
		}
		if !s.roles.HasCapacity(role) {
			return model.ConflictErrorf("role %q is at capacity (%d)", role.Name, role.Constraints.MaxUsers)
		}
		if assignedBy != model.SystemActor {
			assignerRoles, err := s.currentRoles(ctx, assignedBy, now)
			if err != nil {
				return err
			}
			if !s.roles.CanAssign(role, assignerRoles...) {
				return model.AuthorizationErrorf("%s may not assign role %q", assignedBy, role.Name)
			}
		}

		existing, err := s.store.CountAssignments(ctx, repository.AssignmentFilter{UserID: userID, Role: role.Name, ActiveOnly: true})
		if err != nil {
			return err
		}
		if existing > 0 {
			return model.ConflictErrorf("user %s already holds role %q", userID, role.Name)
		}
		if err := scope.CheckRestriction(role.ScopeConfig, opts.Scope); err != nil {
			return err
		}

		a := s.newAssignment(userID, role, assignedBy, opts, now)
		if a.IsPrimary {
			if _, err := s.store.ClearPrimary(ctx, userID, a.ID, now); err != nil {
				return err
			}
		}
		if err := s.store.InsertAssignment(ctx, a); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.ConflictErrorf("user %s already holds role %q", userID, role.Name)
			}
			return err
		}
		if err := s.store.IncRoleStats(ctx, role.Name, 1, 1); err != nil {
			return err
		}
		created = a
		return nil
	})
	s.metrics.ObserveMutation("assign", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("role assigned",
		"user_id", userID, "role", created.Role, "actor", assignedBy,
		"assignment_id", created.ID, "approval_status", created.ApprovalStatus)
	return created, nil
}

func (s *Service) newAssignment(userID string, role *model.Role, assignedBy string, opts model.AssignOptions, now time.Time) *model.Assignment {
	validFrom := now
	if opts.ValidFrom != nil {
		validFrom = *opts.ValidFrom
	}
	status := model.ApprovalApproved
	if role.Constraints.RequiresApproval {
		status = model.ApprovalPending
	}
	return &model.Assignment{
		ID:             uuid.NewString(),
		UserID:         userID,
		Role:           role.Name,
		AssignedBy:     assignedBy,
		Reason:         opts.Reason,
		Scope:          opts.Scope,
		ValidFrom:      validFrom,
		ValidUntil:     opts.ValidUntil,
		Active:         true,
		IsPrimary:      opts.IsPrimary,
		IsTemporary:    opts.IsTemporary,
		ApprovalStatus: status,
		Delegation:     opts.Delegation,
		History: []model.HistoryEntry{{
			Action:    model.HistoryAssigned,
			Actor:     assignedBy,
			Timestamp: now,
			Details:   details("approval_status", string(status), "reason", opts.Reason),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// currentRoles returns the roles of the user's currently valid assignments.
func (s *Service) currentRoles(ctx context.Context, userID string, now time.Time) ([]string, error) {
	list, err := s.store.FindAssignments(ctx, repository.AssignmentFilter{UserID: userID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var roles []string
	for _, a := range list {
		if a.IsCurrentlyValid(now) {
			roles = append(roles, a.Role)
		}
	}
	return roles, nil
}

func (s *Service) Approve(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error) {
	return s.transition(ctx, EventApprove, userID, roleName, actor, reason)
}

func (s *Service) Reject(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error) {
	return s.transition(ctx, EventReject, userID, roleName, actor, reason)
}

func (s *Service) Suspend(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error) {
	return s.transition(ctx, EventSuspend, userID, roleName, actor, reason)
}

func (s *Service) Reactivate(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error) {
	return s.transition(ctx, EventReactivate, userID, roleName, actor, reason)
}

func (s *Service) Revoke(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error) {
	return s.transition(ctx, EventRevoke, userID, roleName, actor, reason)
}

func (s *Service) transition(ctx context.Context, ev Event, userID, roleName, actor, reason string) (*model.Assignment, error) {
	t := transitions[ev]
	userID, roleName = strings.TrimSpace(userID), normalize(roleName)
	var updated *model.Assignment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.now()
		a, err := s.findForTransition(ctx, ev, userID, roleName)
		if err != nil {
			return err
		}
		from := a.State()
		wasActive := a.Active

		if ev == EventApprove || ev == EventReject {
			if err := s.checkApprover(ctx, a, actor, now); err != nil {
				return err
			}
		}
		if ev == EventReactivate {
			if err := s.checkReactivate(ctx, a, now); err != nil {
				return err
			}
		}

		t.apply(a)
		if ev == EventRevoke {
			a.RevokedAt = &now
		}
		a.UpdatedAt = now
		a.History = append(a.History, model.HistoryEntry{
			Action:    t.action,
			Actor:     actor,
			Timestamp: now,
			Details:   details("from", string(from), "reason", reason),
		})
		if err := s.store.ReplaceAssignment(ctx, a); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.ConflictErrorf("user %s already holds role %q", userID, a.Role)
			}
			return err
		}

		var delta int64
		switch {
		case wasActive && !a.Active:
			delta = -1
		case !wasActive && a.Active:
			delta = 1
		}
		if delta != 0 {
			if err := s.store.IncRoleStats(ctx, a.Role, 0, delta); err != nil {
				return err
			}
		}
		updated = a
		return nil
	})
	s.metrics.ObserveMutation(string(ev), err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("assignment "+string(ev), "user_id", userID, "role", updated.Role, "actor", actor, "assignment_id", updated.ID)
	return updated, nil
}

// findForTransition picks the most recent assignment of (user, role) in a state
// the event accepts.
func (s *Service) findForTransition(ctx context.Context, ev Event, userID, roleName string) (*model.Assignment, error) {
	list, err := s.store.FindAssignments(ctx, repository.AssignmentFilter{UserID: userID, Role: roleName})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, model.NotFoundErrorf("no assignment of role %q for user %s", roleName, userID)
	}
	// Active records take precedence over suspended ones.
	for _, active := range []bool{true, false} {
		for _, a := range list {
			if a.Active == active && CanTransition(a.State(), ev) {
				return a, nil
			}
		}
	}
	return nil, model.ConflictErrorf("cannot %s assignment of role %q for user %s in state %s", ev, roleName, userID, list[0].State())
}

// checkApprover applies the assigner rule of the role to whoever settles a
// pending assignment.
func (s *Service) checkApprover(ctx context.Context, a *model.Assignment, actor string, now time.Time) error {
	if actor == model.SystemActor {
		return nil
	}
	role, err := s.store.GetRole(ctx, a.Role)
	if err != nil {
		return err
	}
	actorRoles, err := s.currentRoles(ctx, actor, now)
	if err != nil {
		return err
	}
	if !s.roles.CanAssign(role, actorRoles...) {
		return model.AuthorizationErrorf("%s may not approve role %q", actor, role.Name)
	}
	return nil
}

func (s *Service) checkReactivate(ctx context.Context, a *model.Assignment, now time.Time) error {
	if a.HasLapsed(now) {
		return model.ValidationErrorf("assignment %s validity has ended", a.ID)
	}
	others, err := s.store.FindAssignments(ctx, repository.AssignmentFilter{UserID: a.UserID, ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, o := range others {
		if o.Role == a.Role {
			return model.ConflictErrorf("user %s already holds role %q", a.UserID, a.Role)
		}
	}
	role, err := s.store.GetRole(ctx, a.Role)
	if err != nil {
		return err
	}
	if !s.roles.HasCapacity(role) {
		return model.ConflictErrorf("role %q is at capacity (%d)", role.Name, role.Constraints.MaxUsers)
	}
	return nil
}

// Get returns one assignment by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Assignment, error) {
	return s.store.GetAssignment(ctx, id)
}

// ListForUser returns every assignment of the user in any state, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*model.Assignment, error) {
	var list []*model.Assignment
	err := util.RetryIdempotent(ctx, s.readRetry, func(ctx context.Context) error {
		var err error
		list, err = s.store.FindAssignments(ctx, repository.AssignmentFilter{UserID: userID})
		return err
	})
	return list, err
}

// ActiveAssignmentsFor returns the user's currently valid assignments. Order is unspecified.
func (s *Service) ActiveAssignmentsFor(ctx context.Context, userID string) ([]*model.Assignment, error) {
	var list []*model.Assignment
	err := util.RetryIdempotent(ctx, s.readRetry, func(ctx context.Context) error {
		var err error
		list, err = s.store.FindAssignments(ctx, repository.AssignmentFilter{UserID: userID, ActiveOnly: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	valid := list[:0]
	for _, a := range list {
		if a.IsCurrentlyValid(now) {
			valid = append(valid, a)
		}
	}
	return valid, nil
}

// RecordUsage stamps the assignment as used. Evaluation never calls this.
func (s *Service) RecordUsage(ctx context.Context, assignmentID string) error {
	return s.store.RecordUsage(ctx, assignmentID, s.now())
}

// details builds a history detail map from key/value pairs, skipping empty values.
func details(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			m[kv[i]] = kv[i+1]
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
