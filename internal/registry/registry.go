// Package registry is the authoritative set of process configurations.
//
// Reads are served from memory; writes go through to the store first so a
// failed write never leaves the cache ahead of what is persisted.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/store"
)

// Config is a registered process configuration.
type Config = store.Record

// Patch changes selected fields of a Config. Nil fields are left alone.
type Patch struct {
	Name      *string `json:"name,omitempty"`
	Script    *string `json:"script,omitempty"`
	Cwd       *string `json:"cwd,omitempty"`
	Args      *string `json:"args,omitempty"`
	Instances *int    `json:"instances,omitempty"`
	AutoStart *bool   `json:"autoStart,omitempty"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Script == nil && p.Cwd == nil && p.Args == nil && p.Instances == nil && p.AutoStart == nil
}

// Apply returns c with p's fields trimmed and applied.
func (p Patch) Apply(c Config) Config {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Script != nil {
		c.Script = strings.TrimSpace(*p.Script)
	}
	if p.Cwd != nil {
		c.Cwd = strings.TrimSpace(*p.Cwd)
	}
	if p.Args != nil {
		c.Args = strings.TrimSpace(*p.Args)
	}
	if p.Instances != nil {
		c.Instances = *p.Instances
	}
	if p.AutoStart != nil {
		c.AutoStart = *p.AutoStart
	}
	return c
}

// CommandChanged reports whether b would run a different command than a.
// Only these fields require a restart to take effect.
func CommandChanged(a, b Config) bool {
	return a.Script != b.Script || a.Cwd != b.Cwd || a.Args != b.Args || a.Instances != b.Instances
}

// Normalize trims strings and defaults instances to 1.
func Normalize(c Config) Config {
	c.Name = strings.TrimSpace(c.Name)
	c.Script = strings.TrimSpace(c.Script)
	c.Cwd = strings.TrimSpace(c.Cwd)
	c.Args = strings.TrimSpace(c.Args)
	if c.Instances < 1 {
		c.Instances = 1
	}
	return c
}

// Validate checks a normalized config.
func Validate(c Config) error {
	switch {
	case c.Name == "":
		return errs.Validationf("name is required")
	case c.Script == "":
		return errs.Validationf("script is required")
	case c.Instances < 1:
		return errs.Validationf("instances must be at least 1, got %d", c.Instances)
	}
	return nil
}

type Options struct {
	UniqueNames bool
}

type Registry struct {
	st   store.Store
	opts Options

	mu    sync.RWMutex
	byID  map[int64]Config
	order []int64
}

// Open ensures the schema and loads every stored config.
func Open(ctx context.Context, st store.Store, opts Options) (*Registry, error) {
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	recs, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	r := &Registry{st: st, opts: opts, byID: make(map[int64]Config, len(recs))}
	for _, rec := range recs {
		r.byID[rec.ID] = rec
		r.order = append(r.order, rec.ID)
	}
	return r, nil
}

// Add validates cfg, assigns a new id and persists it.
func (r *Registry) Add(ctx context.Context, cfg Config) (Config, error) {
	cfg = Normalize(cfg)
	cfg.ID = 0
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkNameLocked(cfg.Name, 0); err != nil {
		return Config{}, err
	}
	rec, err := r.st.Insert(ctx, cfg)
	if err != nil {
		return Config{}, errs.Execution(err, "persist process %q", cfg.Name)
	}
	r.byID[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return rec, nil
}

func (r *Registry) Get(id int64) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Config{}, errs.NotFoundf("process %d not found", id)
	}
	return c, nil
}

// Update applies p to the config with the given id. The id never changes.
func (r *Registry) Update(ctx context.Context, id int64, p Patch) (Config, error) {
	if p.Instances != nil && *p.Instances < 1 {
		return Config{}, errs.Validationf("instances must be at least 1, got %d", *p.Instances)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[id]
	if !ok {
		return Config{}, errs.NotFoundf("process %d not found", id)
	}
	next := p.Apply(old)
	if err := Validate(next); err != nil {
		return Config{}, err
	}
	if next.Name != old.Name {
		if err := r.checkNameLocked(next.Name, id); err != nil {
			return Config{}, err
		}
	}
	next.UpdatedAt = time.Now().UTC()
	if err := r.st.Update(ctx, next); err != nil {
		return Config{}, errs.Execution(err, "persist process %d", id)
	}
	r.byID[id] = next
	return next, nil
}

func (r *Registry) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return errs.NotFoundf("process %d not found", id)
	}
	if err := r.st.Delete(ctx, id); err != nil {
		return errs.Execution(err, "delete process %d", id)
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns every config in insertion order.
func (r *Registry) List() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) checkNameLocked(name string, self int64) error {
	if !r.opts.UniqueNames {
		return nil
	}
	for id, c := range r.byID {
		if id != self && c.Name == name {
			return fmt.Errorf("name %q already used by process %d: %w", name, id, errs.ErrDuplicateName)
		}
	}
	return nil
}
