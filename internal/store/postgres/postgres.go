package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/store"
)

// DB implements store.Store on PostgreSQL through the pgx stdlib driver.
// Ids come from a BIGSERIAL sequence, which never hands out the same value
// twice.
type DB struct {
	db *sql.DB
}

func New(dsn string, maxOpen int) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty postgres DSN")
	}
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		d.SetMaxOpenConns(maxOpen)
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS process_config(
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		script TEXT NOT NULL,
		cwd TEXT NOT NULL DEFAULT '',
		args TEXT NOT NULL DEFAULT '',
		instances INTEGER NOT NULL DEFAULT 1,
		auto_start BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`)
	return err
}

func (p *DB) Insert(ctx context.Context, rec store.Record) (store.Record, error) {
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO process_config(name, script, cwd, args, instances, auto_start, created_at, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id;`,
		rec.Name, rec.Script, rec.Cwd, rec.Args, rec.Instances, rec.AutoStart, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (p *DB) Update(ctx context.Context, rec store.Record) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE process_config
		SET name=$1, script=$2, cwd=$3, args=$4, instances=$5, auto_start=$6, updated_at=$7
		WHERE id=$8;`,
		rec.Name, rec.Script, rec.Cwd, rec.Args, rec.Instances, rec.AutoStart, rec.UpdatedAt.UTC(), rec.ID)
	if err != nil {
		return err
	}
	return affectedOne(res, rec.ID)
}

func (p *DB) Delete(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM process_config WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	return affectedOne(res, id)
}

func (p *DB) List(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
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

func (p *DB) Close() error { return p.db.Close() }

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
