package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"signup-api/pkg/database"
)

const uniqueViolation = "23505"

// DocumentRepository implements DocumentStore on a single jsonb table
type DocumentRepository struct {
	db *database.PostgresDB
}

func NewDocumentRepository(db *database.PostgresDB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document, refusing to replace an existing one
func (r *DocumentRepository) Create(ctx context.Context, collection, key string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, key, data)
		VALUES ($1, $2, $3)
	`

	_, err = r.db.Pool.Exec(ctx, query, collection, key, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDocumentExists
		}
		return fmt.Errorf("failed to create document %s/%s: %w", collection, key, err)
	}

	return nil
}

// Set upserts a document. With Merge the top-level fields are combined
// (jsonb ||), otherwise the stored document is replaced.
func (r *DocumentRepository) Set(ctx context.Context, collection, key string, data map[string]interface{}, opts SetOptions) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`
	if opts.Merge {
		query = `
		INSERT INTO documents (collection, key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET
			data = documents.data || EXCLUDED.data,
			updated_at = NOW()
	`
	}

	if _, err := r.db.Pool.Exec(ctx, query, collection, key, payload); err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, key, err)
	}

	return nil
}

// Get reads a document
func (r *DocumentRepository) Get(ctx context.Context, collection, key string) (map[string]interface{}, error) {
	query := `
		SELECT data
		FROM documents
		WHERE collection = $1 AND key = $2
	`

	var raw []byte
	err := r.db.Pool.QueryRow(ctx, query, collection, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, key, err)
	}

	data := make(map[string]interface{})
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}

	return data, nil
}
