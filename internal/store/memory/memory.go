package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/store"
)

// DB keeps records in process memory. Ids are monotonic for the lifetime of
// the DB value only.
type DB struct {
	mu     sync.Mutex
	lastID int64
	recs   map[int64]store.Record
}

func New() *DB { return &DB{recs: make(map[int64]store.Record)} }

func (d *DB) EnsureSchema(context.Context) error { return nil }

func (d *DB) Insert(_ context.Context, rec store.Record) (store.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastID++
	rec.ID = d.lastID
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	d.recs[rec.ID] = rec
	return rec, nil
}

func (d *DB) Update(_ context.Context, rec store.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.recs[rec.ID]
	if !ok {
		return errs.NotFoundf("process %d not found", rec.ID)
	}
	rec.CreatedAt = old.CreatedAt
	d.recs[rec.ID] = rec
	return nil
}

func (d *DB) Delete(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.recs[id]; !ok {
		return errs.NotFoundf("process %d not found", id)
	}
	delete(d.recs, id)
	return nil
}

func (d *DB) List(context.Context) ([]store.Record, error) {
	d.mu.Lock()
	out := make([]store.Record, 0, len(d.recs))
	for _, r := range d.recs {
		out = append(out, r)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *DB) Close() error { return nil }
