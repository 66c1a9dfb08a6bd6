package devapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/db"
	"github.com/erauner12/propsync/internal/entity"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS record (
		id          BIGSERIAL PRIMARY KEY,
		collection  TEXT        NOT NULL,
		payload     JSONB       NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS record_collection_idx ON record (collection, id)`,
	`CREATE TABLE IF NOT EXISTS activity (
		id          BIGSERIAL PRIMARY KEY,
		type        TEXT        NOT NULL,
		message     TEXT        NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// PGRepo stores every collection in one JSONB table
type PGRepo struct {
	DB *pgxpool.Pool
}

// NewPGRepo creates the schema if needed
func NewPGRepo(ctx context.Context, pool *pgxpool.Pool) (*PGRepo, error) {
	if err := db.Migrate(ctx, pool, schema...); err != nil {
		return nil, err
	}
	return &PGRepo{DB: pool}, nil
}

// row flattens a stored payload into an API record
func row(id int64, payload map[string]any, createdAt time.Time) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["id"] = id
	payload["created_at"] = createdAt.UTC().Format(time.RFC3339Nano)
	return payload
}

func (r *PGRepo) List(ctx context.Context, t entity.Type) ([]map[string]any, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, payload, created_at FROM record WHERE collection = $1 ORDER BY id`, t.String())
	if err != nil {
		log.Error().Err(err).Str("collection", t.String()).Msg("failed to query records")
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		var id int64
		var payload map[string]any
		var createdAt time.Time
		if err := rows.Scan(&id, &payload, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, row(id, payload, createdAt))
	}
	return out, rows.Err()
}

func (r *PGRepo) scanOne(t entity.Type, id int64, q pgx.Row) (map[string]any, error) {
	var rid int64
	var payload map[string]any
	var createdAt time.Time
	if err := q.Scan(&rid, &payload, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound{Type: t, ID: id}
		}
		return nil, err
	}
	return row(rid, payload, createdAt), nil
}

func (r *PGRepo) Get(ctx context.Context, t entity.Type, id int64) (map[string]any, error) {
	return r.scanOne(t, id, r.DB.QueryRow(ctx,
		`SELECT id, payload, created_at FROM record WHERE collection = $1 AND id = $2`, t.String(), id))
}

func (r *PGRepo) Create(ctx context.Context, t entity.Type, attrs map[string]any) (map[string]any, error) {
	return r.scanOne(t, 0, r.DB.QueryRow(ctx,
		`INSERT INTO record (collection, payload) VALUES ($1, $2)
		 RETURNING id, payload, created_at`, t.String(), writable(attrs)))
}

func (r *PGRepo) Update(ctx context.Context, t entity.Type, id int64, attrs map[string]any) (map[string]any, error) {
	return r.scanOne(t, id, r.DB.QueryRow(ctx,
		`UPDATE record SET payload = payload || $3::jsonb
		 WHERE collection = $1 AND id = $2
		 RETURNING id, payload, created_at`, t.String(), id, writable(attrs)))
}

func (r *PGRepo) Delete(ctx context.Context, t entity.Type, id int64) (map[string]any, error) {
	return r.scanOne(t, id, r.DB.QueryRow(ctx,
		`DELETE FROM record WHERE collection = $1 AND id = $2
		 RETURNING id, payload, created_at`, t.String(), id))
}

// FindBy compares the field's text form, so 5 and "5" match
func (r *PGRepo) FindBy(ctx context.Context, t entity.Type, field string, value any) (map[string]any, error) {
	return r.scanOne(t, 0, r.DB.QueryRow(ctx,
		`SELECT id, payload, created_at FROM record
		 WHERE collection = $1 AND payload->>$2 = $3
		 ORDER BY id LIMIT 1`, t.String(), field, fmt.Sprint(value)))
}

func (r *PGRepo) Activity(ctx context.Context, limit int) ([]map[string]any, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, type, message, created_at FROM activity ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]any, 0, limit)
	for rows.Next() {
		var id int64
		var typ, message string
		var createdAt time.Time
		if err := rows.Scan(&id, &typ, &message, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":         id,
			"type":       typ,
			"message":    message,
			"created_at": createdAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return out, rows.Err()
}

func (r *PGRepo) AddActivity(ctx context.Context, typ, message string) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO activity (type, message) VALUES ($1, $2)`, typ, message)
	return err
}
