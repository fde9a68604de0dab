package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"scopedrbac/internal/rbac/model"
)

type txKey struct{}

// MemoryRepository keeps every record in process memory. Transactions are
// serialized and rolled back from a snapshot when fn fails. It backs tests and
// the STORAGE=memory mode.
type MemoryRepository struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	permissions map[string]*model.Permission
	roles       map[string]*model.Role
	assignments map[string]*model.Assignment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		permissions: make(map[string]*model.Permission),
		roles:       make(map[string]*model.Role),
		assignments: make(map[string]*model.Assignment),
	}
}

func (m *MemoryRepository) EnsureIndexes(context.Context) error { return nil }

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return model.DependencyError("begin transaction", err)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.snapshot()
	m.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.permissions, m.roles, m.assignments = snapshot.permissions, snapshot.roles, snapshot.assignments
		m.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	permissions map[string]*model.Permission
	roles       map[string]*model.Role
	assignments map[string]*model.Assignment
}

func (m *MemoryRepository) snapshot() memorySnapshot {
	s := memorySnapshot{
		permissions: make(map[string]*model.Permission, len(m.permissions)),
		roles:       make(map[string]*model.Role, len(m.roles)),
		assignments: make(map[string]*model.Assignment, len(m.assignments)),
	}
	for k, v := range m.permissions {
		s.permissions[k] = clonePermission(v)
	}
	for k, v := range m.roles {
		s.roles[k] = cloneRole(v)
	}
	for k, v := range m.assignments {
		s.assignments[k] = cloneAssignment(v)
	}
	return s
}

// write runs fn under the write lock. Outside a transaction it also takes the
// transaction lock so single writes never interleave with a running transaction.
func (m *MemoryRepository) write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return model.DependencyError("write", err)
	}
	if ctx.Value(txKey{}) == nil {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

func (m *MemoryRepository) read(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, model.DependencyError("read", err)
	}
	m.mu.RLock()
	return m.mu.RUnlock, nil
}

// Permissions

func (m *MemoryRepository) InsertPermission(ctx context.Context, p *model.Permission) error {
	return m.write(ctx, func() error {
		if _, ok := m.permissions[p.Name]; ok {
			return ErrDuplicate
		}
		m.permissions[p.Name] = clonePermission(p)
		return nil
	})
}

func (m *MemoryRepository) ReplacePermission(ctx context.Context, p *model.Permission) error {
	return m.write(ctx, func() error {
		if _, ok := m.permissions[p.Name]; !ok {
			return model.NotFoundErrorf("permission %q", p.Name)
		}
		m.permissions[p.Name] = clonePermission(p)
		return nil
	})
}

func (m *MemoryRepository) GetPermission(ctx context.Context, name string) (*model.Permission, error) {
	unlock, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := m.permissions[name]
	if !ok {
		return nil, model.NotFoundErrorf("permission %s", name)
	}
	return clonePermission(p), nil
}

func (m *MemoryRepository) ListPermissions(ctx context.Context, filter PermissionFilter) ([]*model.Permission, error) {
	unlock, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*model.Permission
	for _, p := range m.permissions {
		if filter.Module != "" && p.Module != filter.Module {
			continue
		}
		if filter.SecurityLevel != nil && p.SecurityLevel != *filter.SecurityLevel {
			continue
		}
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		out = append(out, clonePermission(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Roles

func (m *MemoryRepository) InsertRole(ctx context.Context, r *model.Role) error {
	return m.write(ctx, func() error {
		if _, ok := m.roles[r.Name]; ok {
			return ErrDuplicate
		}
		m.roles[r.Name] = cloneRole(r)
		return nil
	})
}

func (m *MemoryRepository) ReplaceRole(ctx context.Context, r *model.Role) error {
	return m.write(ctx, func() error {
		if _, ok := m.roles[r.Name]; !ok {
			return model.NotFoundErrorf("role %q", r.Name)
		}
		m.roles[r.Name] = cloneRole(r)
		return nil
	})
}

func (m *MemoryRepository) GetRole(ctx context.Context, name string) (*model.Role, error) {
	unlock, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, model.NotFoundErrorf("role %s", name)
	}
	return cloneRole(r), nil
}

func (m *MemoryRepository) ListRoles(ctx context.Context) ([]*model.Role, error) {
	unlock, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := make([]*model.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, cloneRole(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryRepository) DeleteRole(ctx context.Context, name string) error {
	return m.write(ctx, func() error {
		if _, ok := m.roles[name]; !ok {
			return model.NotFoundErrorf("role %q", name)
		}
		delete(m.roles, name)
		return nil
	})
}

func (m *MemoryRepository) IncRoleStats(ctx context.Context, name string, totalDelta, activeDelta int64) error {
	return m.write(ctx, func() error {
		r, ok := m.roles[name]
		if !ok {
			return model.NotFoundErrorf("role %q", name)
		}
		r.Stats.TotalUsers += totalDelta
		r.Stats.ActiveUsers += activeDelta
		r.UpdatedAt = time.Now()
		return nil
	})
}

func (m *MemoryRepository) SetRoleStats(ctx context.Context, name string, stats model.RoleStats) error {
	return m.write(ctx, func() error {
		r, ok := m.roles[name]
		if !ok {
			return model.NotFoundErrorf("role %q", name)
		}
		r.Stats = stats
		r.UpdatedAt = time.Now()
		return nil
	})
}

// Assignments

func (m *MemoryRepository) checkUnique(a *model.Assignment) error {
	if !a.Active {
		return nil
	}
	for id, other := range m.assignments {
		if id == a.ID || !other.Active || other.UserID != a.UserID {
			continue
		}
		if other.Role == a.Role {
			return ErrDuplicate
		}
		if a.IsPrimary && other.IsPrimary {
			return ErrDuplicate
		}
	}
	return nil
}

func (m *MemoryRepository) InsertAssignment(ctx context.Context, a *model.Assignment) error {
	return m.write(ctx, func() error {
		if _, ok := m.assignments[a.ID]; ok {
			return ErrDuplicate
		}
		if err := m.checkUnique(a); err != nil {
			return err
		}
		m.assignments[a.ID] = cloneAssignment(a)
		return nil
	})
}

func (m *MemoryRepository) ReplaceAssignment(ctx context.Context, a *model.Assignment) error {
	return m.write(ctx, func() error {
		if _, ok := m.assignments[a.ID]; !ok {
			return model.NotFoundErrorf("assignment %q", a.ID)
		}
		if err := m.checkUnique(a); err != nil {
			return err
		}
		m.assignments[a.ID] = cloneAssignment(a)
		return nil
	})
}

func (m *MemoryRepository) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	unlock, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, model.NotFoundErrorf("assignment %s", id)
	}
	return cloneAssignment(a), nil
}

func matchAssignment(a *model.Assignment, filter AssignmentFilter) bool {
	if filter.UserID != "" && a.UserID != filter.UserID {
		return false
	}
	if filter.Role != "" && a.Role != filter.Role {
		return false
	}
	if (filter.ActiveOnly || filter.LapsedAt != nil) && !a.Active {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, a.ApprovalStatus) {
		return false
	}
	if filter.LapsedAt != nil && !a.HasLapsed(*filter.LapsedAt) {
		return false
	}
	return true
}

func (m *MemoryRepository) FindAssignments(ctx context.Context, filter AssignmentFilter) ([]*model.Assignment, error) {
	unlock, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*model.Assignment
	for _, a := range m.assignments {
		if matchAssignment(a, filter) {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) CountAssignments(ctx context.Context, filter AssignmentFilter) (int64, error) {
	unlock, err := m.read(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for _, a := range m.assignments {
		if matchAssignment(a, filter) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) ClearPrimary(ctx context.Context, userID, exceptID string, at time.Time) (int64, error) {
	var n int64
	err := m.write(ctx, func() error {
		for id, a := range m.assignments {
			if id == exceptID || a.UserID != userID || !a.Active || !a.IsPrimary {
				continue
			}
			a.IsPrimary = false
			a.UpdatedAt = at
			a.History = append(a.History, model.HistoryEntry{
				Action:    model.HistoryModified,
				Actor:     model.SystemActor,
				Timestamp: at,
				Details:   map[string]string{"is_primary": "false", "replaced_by": exceptID},
			})
			n++
		}
		return nil
	})
	return n, err
}

func (m *MemoryRepository) ExpireAssignment(ctx context.Context, id string, entry model.HistoryEntry) (bool, error) {
	var expired bool
	err := m.write(ctx, func() error {
		a, ok := m.assignments[id]
		if !ok {
			return model.NotFoundErrorf("assignment %q", id)
		}
		if !a.Active {
			return nil
		}
		at := entry.Timestamp
		a.Active = false
		a.IsPrimary = false
		a.ExpiredAt = &at
		a.UpdatedAt = at
		a.History = append(a.History, entry)
		expired = true
		return nil
	})
	return expired, err
}

func (m *MemoryRepository) RecordUsage(ctx context.Context, id string, at time.Time) error {
	return m.write(ctx, func() error {
		a, ok := m.assignments[id]
		if !ok {
			return model.NotFoundErrorf("assignment %q", id)
		}
		a.Usage.Count++
		a.Usage.LastUsedAt = &at
		return nil
	})
}

func clonePermission(p *model.Permission) *model.Permission {
	c := *p
	c.Requires = slices.Clone(p.Requires)
	c.Conflicts = slices.Clone(p.Conflicts)
	c.Implies = slices.Clone(p.Implies)
	c.Conditions.Weekdays = slices.Clone(p.Conditions.Weekdays)
	if p.Conditions.TimeWindow != nil {
		w := *p.Conditions.TimeWindow
		c.Conditions.TimeWindow = &w
	}
	if p.Conditions.IPRules != nil {
		c.Conditions.IPRules = &model.IPRules{
			Allow: slices.Clone(p.Conditions.IPRules.Allow),
			Block: slices.Clone(p.Conditions.IPRules.Block),
		}
	}
	return &c
}

func cloneRole(r *model.Role) *model.Role {
	c := *r
	c.Permissions = slices.Clone(r.Permissions)
	c.InheritsFrom = slices.Clone(r.InheritsFrom)
	c.ScopeConfig.AllowedScopes = slices.Clone(r.ScopeConfig.AllowedScopes)
	c.Constraints.AssignableBy = slices.Clone(r.Constraints.AssignableBy)
	return &c
}

func cloneAssignment(a *model.Assignment) *model.Assignment {
	c := *a
	c.Scope = cloneScope(a.Scope)
	c.ValidUntil = cloneTime(a.ValidUntil)
	c.ExpiredAt = cloneTime(a.ExpiredAt)
	c.RevokedAt = cloneTime(a.RevokedAt)
	c.Usage.LastUsedAt = cloneTime(a.Usage.LastUsedAt)
	if a.Delegation != nil {
		d := *a.Delegation
		d.ExpiresAt = cloneTime(a.Delegation.ExpiresAt)
		c.Delegation = &d
	}
	c.AdditionalPermissions = cloneOverrides(a.AdditionalPermissions)
	c.RestrictedPermissions = cloneOverrides(a.RestrictedPermissions)
	c.History = make([]model.HistoryEntry, len(a.History))
	for i, h := range a.History {
		h.Details = maps.Clone(h.Details)
		c.History[i] = h
	}
	return &c
}

func cloneScope(s model.ScopeRestriction) model.ScopeRestriction {
	out := model.ScopeRestriction{
		Regions:  slices.Clone(s.Regions),
		Projects: slices.Clone(s.Projects),
		Schemes:  slices.Clone(s.Schemes),
	}
	if s.Custom != nil {
		out.Custom = make(map[string][]string, len(s.Custom))
		for k, v := range s.Custom {
			out.Custom[k] = slices.Clone(v)
		}
	}
	return out
}

func cloneOverrides(in []model.PermissionOverride) []model.PermissionOverride {
	if in == nil {
		return nil
	}
	out := make([]model.PermissionOverride, len(in))
	for i, o := range in {
		o.ExpiresAt = cloneTime(o.ExpiresAt)
		out[i] = o
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
