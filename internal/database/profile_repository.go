package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/farert/farert-companion/internal/models"
)

// ProfileRepository handles profile database operations
type ProfileRepository struct {
	db DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db DB) *ProfileRepository {
	return &ProfileRepository{
		db: db,
	}
}

type profileRow struct {
	ID         string `db:"id"`
	Platform   string `db:"platform"`
	CreatedAt  int64  `db:"created_at"`
	LastSeenAt int64  `db:"last_seen_at"`
}

// CreateProfile inserts a new profile
func (r *ProfileRepository) CreateProfile(profile *models.Profile) error {
	query := r.db.Rebind(`
		INSERT INTO profiles (id, platform, created_at, last_seen_at)
		VALUES (?, ?, ?, ?)
	`)

	_, err := r.db.Exec(
		query,
		profile.ID,
		profile.Platform,
		profile.CreatedAt.UTC().UnixMilli(),
		profile.LastSeenAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetProfile returns the profile with id, or nil when it does not exist
func (r *ProfileRepository) GetProfile(id string) (*models.Profile, error) {
	var row profileRow

	query := r.db.Rebind(`
		SELECT id, platform, created_at, last_seen_at
		FROM profiles
		WHERE id = ?
	`)

	err := r.db.Get(&row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &models.Profile{
		ID:         row.ID,
		Platform:   row.Platform,
		CreatedAt:  time.UnixMilli(row.CreatedAt).UTC(),
		LastSeenAt: time.UnixMilli(row.LastSeenAt).UTC(),
	}, nil
}

// TouchProfile records activity for id
func (r *ProfileRepository) TouchProfile(id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE profiles SET last_seen_at = ? WHERE id = ?`)

	if _, err := r.db.Exec(query, at.UTC().UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to update profile activity: %w", err)
	}

	return nil
}

// DeleteProfile removes the profile row
func (r *ProfileRepository) DeleteProfile(id string) error {
	query := r.db.Rebind(`DELETE FROM profiles WHERE id = ?`)

	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	return nil
}
