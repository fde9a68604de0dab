// Package catalog is the registry of permission definitions. Definitions are
// cached in process with a bounded staleness window.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"scopedrbac/internal/rbac/graph"
	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/repository"
	"scopedrbac/internal/rbac/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Store is the datastore slice the catalog needs.
type Store interface {
	repository.PermissionStore
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Catalog returns shared definitions; callers must treat them as read-only.
type Catalog struct {
	store  Store
	cache  *expirable.LRU[string, *model.Permission]
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, opts Options) *Catalog {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Catalog{
		store:  store,
		cache:  expirable.NewLRU[string, *model.Permission](opts.CacheSize, nil, opts.CacheTTL),
		logger: util.OrDefault(opts.Logger),
		now:    opts.Clock,
	}
}

// ReadOption adjusts catalog reads.
type ReadOption func(*readOptions)

type readOptions struct {
	includeInactive bool
}

// IncludeInactive makes reads return disabled permissions too.
func IncludeInactive() ReadOption {
	return func(o *readOptions) { o.includeInactive = true }
}

func applyReadOptions(opts []ReadOption) readOptions {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Register adds a permission. Names are unique and the requires graph must stay acyclic.
func (c *Catalog) Register(ctx context.Context, p *model.Permission, actor string) (*model.Permission, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := c.now()
	p.CreatedBy = actor
	p.CreatedAt = now
	p.UpdatedAt = now

	err := c.store.WithTx(ctx, func(ctx context.Context) error {
		if err := c.checkRequiresAcyclic(ctx, p); err != nil {
			return err
		}
		err := c.store.InsertPermission(ctx, p)
		if errors.Is(err, repository.ErrDuplicate) {
			return model.ValidationErrorf("permission %q already exists", p.Name)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	c.cache.Remove(p.Name)
	c.logger.Info("permission registered", "permission", p.Name, "module", p.Module, "actor", actor)
	return p, nil
}

// Update replaces a permission definition. A rejected update leaves the stored graph unchanged.
func (c *Catalog) Update(ctx context.Context, p *model.Permission) (*model.Permission, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := c.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := c.store.GetPermission(ctx, p.Name)
		if err != nil {
			return err
		}
		if err := c.checkRequiresAcyclic(ctx, p); err != nil {
			return err
		}
		p.CreatedBy = current.CreatedBy
		p.CreatedAt = current.CreatedAt
		p.UpdatedAt = c.now()
		return c.store.ReplacePermission(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	c.cache.Remove(p.Name)
	c.logger.Info("permission updated", "permission", p.Name)
	return p, nil
}

// Disable soft-deletes a permission. Disabled permissions are never granted.
func (c *Catalog) Disable(ctx context.Context, name string) error {
	name = normalize(name)
	err := c.store.WithTx(ctx, func(ctx context.Context) error {
		p, err := c.store.GetPermission(ctx, name)
		if err != nil {
			return err
		}
		if !p.Active {
			return nil
		}
		p.Active = false
		p.UpdatedAt = c.now()
		return c.store.ReplacePermission(ctx, p)
	})
	if err != nil {
		return err
	}
	c.cache.Remove(name)
	c.logger.Info("permission disabled", "permission", name)
	return nil
}

// checkRequiresAcyclic checks the requires graph with p's edges in place of the stored ones.
func (c *Catalog) checkRequiresAcyclic(ctx context.Context, p *model.Permission) error {
	all, err := c.store.ListPermissions(ctx, repository.PermissionFilter{IncludeInactive: true})
	if err != nil {
		return err
	}
	adj := make(map[string][]string, len(all)+1)
	for _, existing := range all {
		adj[existing.Name] = existing.Requires
	}
	adj[p.Name] = p.Requires

	if cycle := graph.FindCycle(p.Name, func(n string) []string { return adj[n] }); cycle != nil {
		return model.ValidationErrorf("requires cycle: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

// Get returns an active permission. Disabled permissions read as not found.
func (c *Catalog) Get(ctx context.Context, name string) (*model.Permission, error) {
	p, err := c.load(ctx, normalize(name))
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, model.NotFoundErrorf("permission %s is disabled", p.Name)
	}
	return p, nil
}

// Lookup returns a permission whether or not it is active.
func (c *Catalog) Lookup(ctx context.Context, name string) (*model.Permission, error) {
	return c.load(ctx, normalize(name))
}

func (c *Catalog) load(ctx context.Context, name string) (*model.Permission, error) {
	if p, ok := c.cache.Get(name); ok {
		return p, nil
	}
	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		p, err := c.store.GetPermission(ctx, name)
		if err != nil {
			return nil, err
		}
		c.cache.Add(name, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Permission), nil
}

func (c *Catalog) ListByModule(ctx context.Context, module string, opts ...ReadOption) ([]*model.Permission, error) {
	o := applyReadOptions(opts)
	return c.store.ListPermissions(ctx, repository.PermissionFilter{
		Module:          normalize(module),
		IncludeInactive: o.includeInactive,
	})
}

func (c *Catalog) ListBySecurityLevel(ctx context.Context, level model.SecurityLevel, opts ...ReadOption) ([]*model.Permission, error) {
	o := applyReadOptions(opts)
	return c.store.ListPermissions(ctx, repository.PermissionFilter{
		SecurityLevel:   &level,
		IncludeInactive: o.includeInactive,
	})
}

func (c *Catalog) List(ctx context.Context, opts ...ReadOption) ([]*model.Permission, error) {
	o := applyReadOptions(opts)
	return c.store.ListPermissions(ctx, repository.PermissionFilter{IncludeInactive: o.includeInactive})
}

// ImpliedClosure expands implies edges into a flat set, excluding name itself.
// Lookups are memoized for the duration of the call only. Unknown or disabled
// permissions are not expanded further.
func (c *Catalog) ImpliedClosure(ctx context.Context, name string) ([]string, error) {
	memo := make(map[string][]string)
	var firstErr error
	edges := func(n string) []string {
		if implies, ok := memo[n]; ok {
			return implies
		}
		p, err := c.Get(ctx, n)
		switch {
		case errors.Is(err, model.ErrNotFound):
			memo[n] = nil
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
			memo[n] = nil
		default:
			memo[n] = p.Implies
		}
		return memo[n]
	}
	closure := graph.Reachable(normalize(name), edges)
	if firstErr != nil {
		return nil, firstErr
	}
	return closure, nil
}

// Invalidate drops every cached definition.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
