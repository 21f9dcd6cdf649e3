// Package env composes the environment handed to supervised processes.
package env

import (
	"os"
	"sort"
	"strings"
	"sync"
)

// Env layers global variables over a base environment. It is safe for
// concurrent use; Merge is called from every process start.
type Env struct {
	mu     sync.RWMutex
	base   map[string]string
	global map[string]string
}

// New returns an Env whose base is the supervisor's own environment when
// inheritOS is true, or empty otherwise.
func New(inheritOS bool) *Env {
	e := &Env{base: map[string]string{}, global: map[string]string{}}
	if inheritOS {
		e.base = toMap(os.Environ())
	}
	return e
}

// SetGlobal adds or overrides global variables from K=V pairs.
func (e *Env) SetGlobal(kvs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range toMap(kvs) {
		e.global[k] = v
	}
}

func (e *Env) Unset(k string) {
	e.mu.Lock()
	delete(e.global, k)
	e.mu.Unlock()
}

// Merge returns base, then globals, then extra (K=V pairs), with later
// layers winning. ${VAR} and $VAR references are expanded once against the
// composed map; unknown references expand to the empty string. The result
// is sorted by key.
func (e *Env) Merge(extra ...string) []string {
	e.mu.RLock()
	m := make(map[string]string, len(e.base)+len(e.global)+len(extra))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	e.mu.RUnlock()
	for k, v := range toMap(extra) {
		m[k] = v
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+os.Expand(m[k], func(name string) string { return m[name] }))
	}
	return out
}

// Parse splits a K=V pair. Pairs without '=' or with an empty key are
// rejected.
func Parse(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || k == "" {
		return "", "", false
	}
	return k, v, true
}

func toMap(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := Parse(kv); ok {
			m[k] = v
		}
	}
	return m
}
