package repository

import (
	"context"
	"fmt"
	"time"

	"signup-api/internal/domain"
)

type ProfileRepo struct {
	store DocumentStore
}

func NewProfileRepository(store DocumentStore) *ProfileRepo {
	return &ProfileRepo{store: store}
}

// Create writes the profile for a freshly created credential
func (r *ProfileRepo) Create(ctx context.Context, uid string, profile *domain.Profile) error {
	if err := r.store.Create(ctx, domain.ProfilesCollection, uid, profileToDocument(profile)); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Merge upserts the profile, keeping stored fields the profile leaves empty
func (r *ProfileRepo) Merge(ctx context.Context, uid string, profile *domain.Profile) error {
	err := r.store.Set(ctx, domain.ProfilesCollection, uid, profileToDocument(profile), SetOptions{Merge: true})
	if err != nil {
		return fmt.Errorf("failed to merge profile: %w", err)
	}
	return nil
}

// Get retrieves a profile by UID
func (r *ProfileRepo) Get(ctx context.Context, uid string) (*domain.Profile, error) {
	data, err := r.store.Get(ctx, domain.ProfilesCollection, uid)
	if err != nil {
		return nil, err
	}
	return documentToProfile(data), nil
}

// profileToDocument leaves out empty fields so a merge never blanks stored ones
func profileToDocument(p *domain.Profile) map[string]interface{} {
	doc := make(map[string]interface{}, 4)
	if p.Email != "" {
		doc["email"] = p.Email
	}
	if p.Name != "" {
		doc["name"] = p.Name
	}
	if p.Role != "" {
		doc["role"] = string(p.Role)
	}
	if !p.CreatedAt.IsZero() {
		doc["createdAt"] = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return doc
}

func documentToProfile(doc map[string]interface{}) *domain.Profile {
	p := &domain.Profile{}
	if v, ok := doc["email"].(string); ok {
		p.Email = v
	}
	if v, ok := doc["name"].(string); ok {
		p.Name = v
	}
	if v, ok := doc["role"].(string); ok {
		p.Role = domain.Role(v)
	}
	if v, ok := doc["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.CreatedAt = t
		}
	}
	return p
}
