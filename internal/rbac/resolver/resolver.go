// Package resolver answers authorization questions: which permissions a user
// holds, whether a check passes, and why.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"scopedrbac/internal/rbac/metrics"
	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/scope"
	"scopedrbac/internal/rbac/util"
)

type AssignmentSource interface {
	ActiveAssignmentsFor(ctx context.Context, userID string) ([]*model.Assignment, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Assignment, error)
}

type RoleSource interface {
	Grants(ctx context.Context, roleName string) (map[string]string, error)
}

type PermissionCatalog interface {
	Get(ctx context.Context, name string) (*model.Permission, error)
	Lookup(ctx context.Context, name string) (*model.Permission, error)
	ImpliedClosure(ctx context.Context, name string) ([]string, error)
	ValidateConditions(p *model.Permission, cc model.CheckContext) model.ConditionResult
}

// Invalidator drops cached definitions.
type Invalidator interface {
	Invalidate()
}

// Denial reasons.
const (
	ReasonUnknownPermission = "unknown or inactive permission"
	ReasonNoAssignment      = "no currently valid assignment"
	ReasonNotGranted        = "permission not granted"
	ReasonRestricted        = "permission restricted on assignment"
	ReasonOutOfScope        = "resource outside assignment scope"
	ReasonTimeout           = "check timed out"
	ReasonEvaluationFailed  = "evaluation failed"
)

// SourceOverride marks a permission granted by an assignment-level addition.
const SourceOverride = "override"

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector
	// CheckTimeout bounds each check; an expired check is denied.
	CheckTimeout time.Duration
	Clock        func() time.Time
	Invalidators []Invalidator
}

type Resolver struct {
	assignments  AssignmentSource
	roles        RoleSource
	perms        PermissionCatalog
	invalidators []Invalidator
	logger       *slog.Logger
	metrics      *metrics.Collector
	timeout      time.Duration
	now          func() time.Time
}

func New(assignments AssignmentSource, roles RoleSource, perms PermissionCatalog, opts Options) *Resolver {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Resolver{
		assignments:  assignments,
		roles:        roles,
		perms:        perms,
		invalidators: opts.Invalidators,
		logger:       util.OrDefault(opts.Logger),
		metrics:      opts.Metrics,
		timeout:      opts.CheckTimeout,
		now:          opts.Clock,
	}
}

// assignmentGrants resolves one assignment: role closure, then additions in
// effect (with their implications), then restrictions in effect are removed.
// Restricted permissions are reported separately.
func (r *Resolver) assignmentGrants(ctx context.Context, a *model.Assignment, now time.Time) (map[string]string, map[string]bool, error) {
	base, err := r.roles.Grants(ctx, a.Role)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, nil, err
	}
	grants := make(map[string]string, len(base)+len(a.AdditionalPermissions))
	for p, src := range base {
		grants[p] = src
	}

	for _, o := range a.AdditionalPermissions {
		if !o.InEffect(now) {
			continue
		}
		if _, ok := grants[o.Permission]; !ok {
			grants[o.Permission] = SourceOverride
		}
		implied, err := r.perms.ImpliedClosure(ctx, o.Permission)
		if err != nil {
			return nil, nil, err
		}
		for _, ip := range implied {
			if _, ok := grants[ip]; !ok {
				grants[ip] = SourceOverride
			}
		}
	}

	restricted := make(map[string]bool)
	for _, o := range a.RestrictedPermissions {
		if !o.InEffect(now) {
			continue
		}
		if _, ok := grants[o.Permission]; ok {
			restricted[o.Permission] = true
			delete(grants, o.Permission)
		}
	}
	return grants, restricted, nil
}

// EffectivePermissions unites the resolved permissions of every currently valid
// assignment of the user. The result is sorted.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	assignments, err := r.assignments.ActiveAssignmentsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	set, err := r.union(ctx, assignments, r.now())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) union(ctx context.Context, assignments []*model.Assignment, now time.Time) (map[string]bool, error) {
	set := make(map[string]bool)
	for _, a := range assignments {
		grants, _, err := r.assignmentGrants(ctx, a, now)
		if err != nil {
			return nil, err
		}
		for p := range grants {
			set[p] = true
		}
	}
	return set, nil
}

// HasPermission reports whether the user holds permission name under cc.
// It never mutates state and denies on any failure.
func (r *Resolver) HasPermission(ctx context.Context, userID, name string, cc model.CheckContext) bool {
	return r.Check(ctx, userID, name, cc).Allowed
}

// Check evaluates permission name for the user. When tags are given, a single
// assignment must both grant the permission and cover the resource.
func (r *Resolver) Check(ctx context.Context, userID, name string, cc model.CheckContext, tags ...model.ResourceTag) model.Decision {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	d := r.check(ctx, userID, name, cc, tags)
	if d.Allowed && ctx.Err() != nil {
		d = deny(name, ReasonTimeout)
	}

	outcome := "allowed"
	if !d.Allowed {
		outcome = "denied"
		r.logger.Debug("permission denied", "user_id", userID, "permission", name, "reason", d.Reason)
	}
	r.metrics.ObserveCheck(outcome, time.Since(start))
	return d
}

func (r *Resolver) check(ctx context.Context, userID, name string, cc model.CheckContext, tags []model.ResourceTag) model.Decision {
	p, err := r.perms.Get(ctx, name)
	if errors.Is(err, model.ErrNotFound) {
		return deny(name, ReasonUnknownPermission)
	}
	if err != nil {
		return r.failClosed(ctx, userID, name, err)
	}
	name = p.Name

	assignments, err := r.assignments.ActiveAssignmentsFor(ctx, userID)
	if err != nil {
		return r.failClosed(ctx, userID, name, err)
	}
	if len(assignments) == 0 {
		return deny(name, ReasonNoAssignment)
	}

	now := r.now()
	held := make(map[string]bool)
	var granting []*model.Assignment
	restricted := false
	for _, a := range assignments {
		grants, blocked, err := r.assignmentGrants(ctx, a, now)
		if err != nil {
			return r.failClosed(ctx, userID, name, err)
		}
		for g := range grants {
			held[g] = true
		}
		if _, ok := grants[name]; ok {
			granting = append(granting, a)
		}
		restricted = restricted || blocked[name]
	}
	if len(granting) == 0 {
		if restricted {
			return deny(name, ReasonRestricted)
		}
		return deny(name, ReasonNotGranted)
	}

	// Prerequisites must be effective too, not only checked at role write time.
	for _, req := range p.Requires {
		if !held[req] {
			return deny(name, "missing prerequisite "+req)
		}
	}

	if len(tags) > 0 {
		var covering []*model.Assignment
		for _, a := range granting {
			if scope.InScope(a, tags) {
				covering = append(covering, a)
			}
		}
		if len(covering) == 0 {
			return deny(name, ReasonOutOfScope)
		}
		granting = covering
	}

	if res := r.perms.ValidateConditions(p, cc); !res.Valid {
		return deny(name, res.Reason)
	}

	ids := make([]string, len(granting))
	for i, a := range granting {
		ids[i] = a.ID
	}
	return model.Decision{Allowed: true, Permission: name, Assignments: ids}
}

func (r *Resolver) failClosed(ctx context.Context, userID, name string, err error) model.Decision {
	if ctx.Err() != nil {
		return deny(name, ReasonTimeout)
	}
	r.logger.Warn("permission check failed closed", "user_id", userID, "permission", name, "error", err)
	return deny(name, fmt.Sprintf("%s: %v", ReasonEvaluationFailed, err))
}

func deny(name, reason string) model.Decision {
	return model.Decision{Permission: name, Reason: reason}
}

// ResourceAccessible reports whether any currently valid assignment of the user
// covers the tagged resource. Failures deny.
func (r *Resolver) ResourceAccessible(ctx context.Context, userID string, tags []model.ResourceTag) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	assignments, err := r.assignments.ActiveAssignmentsFor(ctx, userID)
	if err != nil {
		r.logger.Warn("resource access check failed closed", "user_id", userID, "error", err)
		return false
	}
	_, ok := scope.AnyInScope(assignments, tags)
	return ok && ctx.Err() == nil
}

// Invalidate drops cached role and permission definitions.
func (r *Resolver) Invalidate() {
	for _, inv := range r.invalidators {
		inv.Invalidate()
	}
}
