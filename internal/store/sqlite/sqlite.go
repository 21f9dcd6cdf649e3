package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/store"
)

// DB implements store.Store on SQLite (modernc.org/sqlite, CGO-free).
// AUTOINCREMENT keeps ids from being reused after deletes.
type DB struct {
	db *sql.DB
}

// New opens the database file at path. ":memory:" works for tests.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" to a single shared database
	d.SetMaxOpenConns(1)
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS process_config(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		script TEXT NOT NULL,
		cwd TEXT NOT NULL DEFAULT '',
		args TEXT NOT NULL DEFAULT '',
		instances INTEGER NOT NULL DEFAULT 1,
		auto_start BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`)
	return err
}

func (s *DB) Insert(ctx context.Context, rec store.Record) (store.Record, error) {
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO process_config(name, script, cwd, args, instances, auto_start, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.Name, rec.Script, rec.Cwd, rec.Args, rec.Instances, rec.AutoStart, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return store.Record{}, err
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (s *DB) Update(ctx context.Context, rec store.Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_config
		SET name=?, script=?, cwd=?, args=?, instances=?, auto_start=?, updated_at=?
		WHERE id=?;`,
		rec.Name, rec.Script, rec.Cwd, rec.Args, rec.Instances, rec.AutoStart, rec.UpdatedAt.UTC(), rec.ID)
	if err != nil {
		return err
	}
	return affectedOne(res, rec.ID)
}

func (s *DB) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM process_config WHERE id=?;`, id)
	if err != nil {
		return err
	}
	return affectedOne(res, id)
}

func (s *DB) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, script, cwd, args, instances, auto_start, created_at, updated_at
		FROM process_config ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []store.Record
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Script, &r.Cwd, &r.Args, &r.Instances, &r.AutoStart, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DB) Close() error { return s.db.Close() }

func affectedOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFoundf("process %d not found", id)
	}
	return nil
}
