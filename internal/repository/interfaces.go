package repository

import (
	"context"
	"errors"

	"signup-api/internal/domain"
)

var (
	// ErrDocumentExists is returned by Create when the key is already taken
	ErrDocumentExists = errors.New("document already exists")

	// ErrDocumentNotFound is returned by Get for a missing key
	ErrDocumentNotFound = errors.New("document not found")
)

// SetOptions controls how Set treats an existing document
type SetOptions struct {
	// Merge keeps fields of the stored document that the new data does not name
	Merge bool
}

// DocumentStore is a keyed JSON document store grouped by collection
type DocumentStore interface {
	// Create writes a new document and fails with ErrDocumentExists if the key is taken
	Create(ctx context.Context, collection, key string, data map[string]interface{}) error

	// Set writes a document, creating it when absent
	Set(ctx context.Context, collection, key string, data map[string]interface{}, opts SetOptions) error

	// Get reads a document
	Get(ctx context.Context, collection, key string) (map[string]interface{}, error)
}

// ProfileRepository stores user profile records keyed by credential UID
type ProfileRepository interface {
	// Create writes the profile for a freshly created credential
	Create(ctx context.Context, uid string, profile *domain.Profile) error

	// Merge upserts the profile, preserving fields it does not carry
	Merge(ctx context.Context, uid string, profile *domain.Profile) error

	// Get retrieves a profile by UID
	Get(ctx context.Context, uid string) (*domain.Profile, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Documents DocumentStore
	Profile   ProfileRepository
}
