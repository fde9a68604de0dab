package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"scopedrbac/internal/rbac/assignment"
	"scopedrbac/internal/rbac/catalog"
	"scopedrbac/internal/rbac/metrics"
	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/repository"
	"scopedrbac/internal/rbac/rolegraph"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *assignment.Service
	resolver *Resolver
	metrics  *metrics.Collector
	clock    *clock
}

func perm(name string, scope model.ScopeClass) *model.Permission {
	return &model.Permission{Name: name, Module: "test", Category: model.CategoryRead, Scope: scope, Active: true}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	clk := &clock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	cat := catalog.New(repo, catalog.Options{Clock: clk.Now})
	graph := rolegraph.New(repo, cat, rolegraph.Options{Clock: clk.Now})

	write := perm("doc.write.global", model.ScopeGlobal)
	write.Implies = []string{"doc.read.global"}
	export := perm("report.export.global", model.ScopeGlobal)
	export.Conditions.TimeWindow = &model.TimeWindow{Start: 9, End: 17}
	approve := perm("pay.approve.global", model.ScopeGlobal)
	approve.Requires = []string{"pay.read.global"}

	for _, p := range []*model.Permission{
		perm("doc.read.global", model.ScopeGlobal),
		write,
		export,
		perm("pay.read.global", model.ScopeGlobal),
		approve,
		perm("site.inspect.regional", model.ScopeRegional),
	} {
		_, err := cat.Register(ctx, p, model.SystemActor)
		require.NoError(t, err)
	}

	for _, r := range []*model.Role{
		{Name: "viewer", Active: true, Permissions: []string{"doc.read.global"}},
		{Name: "editor", Active: true, Permissions: []string{"doc.write.global"}},
		{Name: "lead", Active: true, Permissions: []string{"report.export.global"}, InheritsFrom: []string{"editor"}},
		{Name: "inspector", Active: true, Permissions: []string{"site.inspect.regional"},
			ScopeConfig: model.RoleScopeConfig{AllowMultipleScopes: true}},
	} {
		_, err := graph.CreateRole(ctx, r, model.SystemActor)
		require.NoError(t, err)
	}

	m := metrics.New(prometheus.NewRegistry())
	svc := assignment.NewService(repo, graph, cat, assignment.Options{Clock: clk.Now})
	res := New(svc, graph, cat, Options{
		Metrics:      m,
		Clock:        clk.Now,
		Invalidators: []Invalidator{cat, graph},
	})
	return &fixture{svc: svc, resolver: res, metrics: m, clock: clk}
}

func (f *fixture) assign(t *testing.T, user, role string, opts model.AssignOptions) *model.Assignment {
	t.Helper()
	a, err := f.svc.Assign(context.Background(), user, role, model.SystemActor, opts)
	require.NoError(t, err)
	return a
}

func TestHasPermission_Direct(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.assign(t, "u1", "viewer", model.AssignOptions{})

	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))
	assert.False(t, f.resolver.HasPermission(ctx, "u1", "doc.write.global", model.CheckContext{}))

	d := f.resolver.Check(ctx, "u1", "doc.write.global", model.CheckContext{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotGranted, d.Reason)
}

func TestHasPermission_InheritedAndImplied(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.assign(t, "u1", "lead", model.AssignOptions{})

	perms, err := f.resolver.EffectivePermissions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.read.global", "doc.write.global", "report.export.global"}, perms)

	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.write.global", model.CheckContext{}))
	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))
}

func TestHasPermission_NoAssignments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	d := f.resolver.Check(ctx, "nobody", "doc.read.global", model.CheckContext{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoAssignment, d.Reason)

	perms, err := f.resolver.EffectivePermissions(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestHasPermission_UnknownPermission(t *testing.T) {
	f := setup(t)
	f.assign(t, "u1", "viewer", model.AssignOptions{})

	d := f.resolver.Check(context.Background(), "u1", "ghost.read.global", model.CheckContext{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnknownPermission, d.Reason)
}

func TestHasPermission_ExpiredAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	until := f.clock.Now().Add(time.Hour)
	f.assign(t, "u1", "viewer", model.AssignOptions{ValidUntil: &until})

	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))

	// No sweep has run; validity alone decides.
	f.clock.Advance(2 * time.Hour)
	assert.False(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))
}

func TestCheck_Scope(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.assign(t, "u1", "inspector", model.AssignOptions{
		Scope: model.ScopeRestriction{Regions: []string{"north", "east"}},
	})

	d := f.resolver.Check(ctx, "u1", "site.inspect.regional", model.CheckContext{}, model.Region("south"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOutOfScope, d.Reason)

	d = f.resolver.Check(ctx, "u1", "site.inspect.regional", model.CheckContext{}, model.Region("east"))
	assert.True(t, d.Allowed)
	assert.Len(t, d.Assignments, 1)

	// Project is unrestricted on this assignment.
	assert.True(t, f.resolver.ResourceAccessible(ctx, "u1", []model.ResourceTag{model.Region("north"), model.Project("p9")}))
	assert.False(t, f.resolver.ResourceAccessible(ctx, "u1", []model.ResourceTag{model.Region("south")}))
	assert.False(t, f.resolver.ResourceAccessible(ctx, "nobody", []model.ResourceTag{model.Region("north")}))
}

func TestCheck_ScopeMustMatchGrantingAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.assign(t, "u1", "inspector", model.AssignOptions{Scope: model.ScopeRestriction{Regions: []string{"north"}}})
	f.assign(t, "u1", "viewer", model.AssignOptions{})

	// viewer covers every region but does not grant the permission.
	d := f.resolver.Check(ctx, "u1", "site.inspect.regional", model.CheckContext{}, model.Region("south"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOutOfScope, d.Reason)
}

func TestHasPermission_TimeWindow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.assign(t, "u1", "lead", model.AssignOptions{})

	night := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	morning := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	d := f.resolver.Check(ctx, "u1", "report.export.global", model.CheckContext{Timestamp: night})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, catalog.ReasonOutsideHours)

	assert.True(t, f.resolver.HasPermission(ctx, "u1", "report.export.global", model.CheckContext{Timestamp: morning}))
}

func TestHasPermission_RestrictionPrecedence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assign(t, "u1", "editor", model.AssignOptions{})

	_, err := f.svc.AddRestriction(ctx, a.ID, "doc.read.global", "admin", "audit", nil)
	require.NoError(t, err)

	d := f.resolver.Check(ctx, "u1", "doc.read.global", model.CheckContext{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRestricted, d.Reason)
	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.write.global", model.CheckContext{}))

	_, err = f.svc.RemoveRestriction(ctx, a.ID, "doc.read.global", "admin")
	require.NoError(t, err)
	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))

	expires := f.clock.Now().Add(time.Hour)
	_, err = f.svc.AddRestriction(ctx, a.ID, "doc.read.global", "admin", "temporary", &expires)
	require.NoError(t, err)
	assert.False(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))

	f.clock.Advance(2 * time.Hour)
	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))
}

func TestHasPermission_RestrictionBeatsOtherGrantOnSameAssignmentOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assign(t, "u1", "editor", model.AssignOptions{})
	f.assign(t, "u1", "viewer", model.AssignOptions{})

	_, err := f.svc.AddRestriction(ctx, a.ID, "doc.read.global", "admin", "", nil)
	require.NoError(t, err)

	// The viewer assignment still grants it.
	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{}))
}

func TestHasPermission_AdditionalPermission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assign(t, "u1", "viewer", model.AssignOptions{})

	expires := f.clock.Now().Add(time.Hour)
	_, err := f.svc.AddOverridePermission(ctx, a.ID, "doc.write.global", "admin", "cover", &expires)
	require.NoError(t, err)
	assert.True(t, f.resolver.HasPermission(ctx, "u1", "doc.write.global", model.CheckContext{}))

	f.clock.Advance(2 * time.Hour)
	assert.False(t, f.resolver.HasPermission(ctx, "u1", "doc.write.global", model.CheckContext{}))
}

func TestHasPermission_MissingPrerequisite(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assign(t, "u1", "viewer", model.AssignOptions{})

	_, err := f.svc.AddOverridePermission(ctx, a.ID, "pay.approve.global", "admin", "", nil)
	require.NoError(t, err)

	d := f.resolver.Check(ctx, "u1", "pay.approve.global", model.CheckContext{})
	assert.False(t, d.Allowed)
	assert.Equal(t, "missing prerequisite pay.read.global", d.Reason)

	_, err = f.svc.AddOverridePermission(ctx, a.ID, "pay.read.global", "admin", "", nil)
	require.NoError(t, err)
	assert.True(t, f.resolver.HasPermission(ctx, "u1", "pay.approve.global", model.CheckContext{}))
}

func TestCheck_RecordsMetrics(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.assign(t, "u1", "viewer", model.AssignOptions{})

	f.resolver.HasPermission(ctx, "u1", "doc.read.global", model.CheckContext{})
	f.resolver.HasPermission(ctx, "u1", "doc.write.global", model.CheckContext{})
	f.resolver.HasPermission(ctx, "u2", "doc.write.global", model.CheckContext{})

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ChecksTotal.WithLabelValues("allowed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.ChecksTotal.WithLabelValues("denied")))
}

func TestExplain(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lead := f.assign(t, "u1", "lead", model.AssignOptions{})
	viewer := f.assign(t, "u1", "viewer", model.AssignOptions{})
	_, err := f.svc.AddRestriction(ctx, viewer.ID, "doc.read.global", "admin", "", nil)
	require.NoError(t, err)

	ex, err := f.resolver.Explain(ctx, "u1", "doc.read.global")
	require.NoError(t, err)
	assert.True(t, ex.Known)
	assert.True(t, ex.Active)
	assert.True(t, ex.Granted)
	require.Len(t, ex.Assignments, 2)

	byID := map[string]model.AssignmentExplanation{}
	for _, ae := range ex.Assignments {
		byID[ae.AssignmentID] = ae
	}
	assert.True(t, byID[lead.ID].Grants)
	assert.Equal(t, rolegraph.SourceImplied+"doc.write.global", byID[lead.ID].Source)
	assert.False(t, byID[viewer.ID].Grants)
	assert.True(t, byID[viewer.ID].Blocked)
	assert.Equal(t, ReasonRestricted, byID[viewer.ID].Reason)

	ex, err = f.resolver.Explain(ctx, "u1", "ghost.read.global")
	require.NoError(t, err)
	assert.False(t, ex.Known)
	assert.False(t, ex.Granted)
	assert.Equal(t, ReasonUnknownPermission, ex.Reason)
}

type mockAssignments struct {
	mock.Mock
}

func (m *mockAssignments) ActiveAssignmentsFor(ctx context.Context, userID string) ([]*model.Assignment, error) {
	args := m.Called(ctx, userID)
	as, _ := args.Get(0).([]*model.Assignment)
	return as, args.Error(1)
}

func (m *mockAssignments) ListForUser(ctx context.Context, userID string) ([]*model.Assignment, error) {
	args := m.Called(ctx, userID)
	as, _ := args.Get(0).([]*model.Assignment)
	return as, args.Error(1)
}

func failingFixture(t *testing.T, timeout time.Duration) (*Resolver, *mockAssignments) {
	t.Helper()
	f := setup(t)
	ma := &mockAssignments{}
	res := New(ma, f.resolver.roles, f.resolver.perms, Options{CheckTimeout: timeout, Clock: f.clock.Now})
	return res, ma
}

func TestHasPermission_FailsClosedOnStoreError(t *testing.T) {
	res, ma := failingFixture(t, time.Second)
	ma.On("ActiveAssignmentsFor", mock.Anything, "u1").
		Return(nil, model.DependencyError("find assignments", assert.AnError))

	d := res.Check(context.Background(), "u1", "doc.read.global", model.CheckContext{})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, ReasonEvaluationFailed)
	assert.False(t, res.ResourceAccessible(context.Background(), "u1", []model.ResourceTag{model.Region("north")}))
	ma.AssertExpectations(t)
}

func TestHasPermission_FailsClosedOnTimeout(t *testing.T) {
	res, ma := failingFixture(t, 20*time.Millisecond)
	ma.On("ActiveAssignmentsFor", mock.Anything, "u1").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, model.DependencyError("find assignments", context.DeadlineExceeded))

	d := res.Check(context.Background(), "u1", "doc.read.global", model.CheckContext{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonTimeout, d.Reason)
}

func TestInvalidate(t *testing.T) {
	f := setup(t)
	f.assign(t, "u1", "viewer", model.AssignOptions{})
	assert.True(t, f.resolver.HasPermission(context.Background(), "u1", "doc.read.global", model.CheckContext{}))

	f.resolver.Invalidate()
	assert.True(t, f.resolver.HasPermission(context.Background(), "u1", "doc.read.global", model.CheckContext{}))
}
