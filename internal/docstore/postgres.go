package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores documents in a single table keyed by (collection, id)
// with a version column for conflict detection.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the documents table if it is missing. Called once
// at startup by the binaries.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection  TEXT        NOT NULL,
			id          TEXT        NOT NULL,
			version     BIGINT      NOT NULL,
			body        JSONB       NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, version, body, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2`,
		collection, id,
	)

	var doc Document
	err := row.Scan(&doc.ID, &doc.Version, &doc.Body, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document: %w: %w", ErrUnavailable, err)
	}
	return doc, nil
}

func (s *Postgres) Query(ctx context.Context, collection string, pred Predicate) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, version, body, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Version, &doc.Body, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w: %w", ErrUnavailable, err)
		}
		if pred == nil || pred(doc) {
			out = append(out, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query documents: %w: %w", ErrUnavailable, err)
	}
	return out, nil
}

func (s *Postgres) Put(ctx context.Context, collection, id string, body []byte, version int64) (int64, error) {
	if version == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO documents (collection, id, version, body)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (collection, id) DO NOTHING`,
			collection, id, body,
		)
		if err != nil {
			return 0, fmt.Errorf("insert document: %w: %w", ErrUnavailable, err)
		}
		if tag.RowsAffected() == 0 {
			return 0, ErrConflict
		}
		return 1, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET version = version + 1, body = $4, updated_at = now()
		WHERE collection = $1 AND id = $2 AND version = $3`,
		collection, id, version, body,
	)
	if err != nil {
		return 0, fmt.Errorf("update document: %w: %w", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale token from a missing row.
		if _, getErr := s.Get(ctx, collection, id); errors.Is(getErr, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, ErrConflict
	}
	return version + 1, nil
}

func (s *Postgres) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w: %w", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
