package factory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loykin/pmdeck/internal/store"
	"github.com/loykin/pmdeck/internal/store/memory"
	pg "github.com/loykin/pmdeck/internal/store/postgres"
	sq "github.com/loykin/pmdeck/internal/store/sqlite"
)

// Builder opens a backend from its config.
type Builder func(cfg store.Config) (store.Store, error)

var builders = map[string]Builder{
	"memory": func(store.Config) (store.Store, error) { return memory.New(), nil },
	"sqlite": func(c store.Config) (store.Store, error) {
		path := strings.TrimPrefix(c.Path, "sqlite://")
		if path == "" {
			path = strings.TrimPrefix(c.DSN, "sqlite://")
		}
		return sq.New(path)
	},
	"postgres": func(c store.Config) (store.Store, error) { return pg.New(c.DSN, c.MaxOpenConns) },
}

func init() {
	builders["postgresql"] = builders["postgres"]
}

// New opens the backend named by cfg.Type. An empty type is inferred from
// the DSN scheme, falling back to sqlite.
func New(cfg store.Config) (store.Store, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		typ = inferType(cfg.DSN)
	}
	b, ok := builders[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported store type %q (supported: %s)", cfg.Type, strings.Join(SupportedTypes(), ", "))
	}
	return b(cfg)
}

func SupportedTypes() []string {
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func inferType(dsn string) string {
	ld := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}
