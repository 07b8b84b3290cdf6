package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StateRepository stores profile state entries, one namespace per profile.
// It satisfies store.Backend.
type StateRepository struct {
	db DB
}

// NewStateRepository creates a new state repository
func NewStateRepository(db DB) *StateRepository {
	return &StateRepository{
		db: db,
	}
}

// Get returns the value stored under namespace/key; ok is false when absent
func (r *StateRepository) Get(namespace, key string) (string, bool, error) {
	var value string

	query := r.db.Rebind(`
		SELECT value FROM profile_state
		WHERE namespace = ? AND state_key = ?
	`)

	err := r.db.Get(&value, query, namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get state %s: %w", key, err)
	}

	return value, true, nil
}

// Set writes value under namespace/key, replacing any previous value
func (r *StateRepository) Set(namespace, key, value string) error {
	query := r.db.Rebind(`
		INSERT INTO profile_state (namespace, state_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, state_key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)

	if _, err := r.db.Exec(query, namespace, key, value, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}

	return nil
}

// Delete removes namespace/key; deleting a missing key is not an error
func (r *StateRepository) Delete(namespace, key string) error {
	query := r.db.Rebind(`DELETE FROM profile_state WHERE namespace = ? AND state_key = ?`)

	if _, err := r.db.Exec(query, namespace, key); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}

	return nil
}

// DeleteNamespace removes every entry of namespace and returns how many were removed
func (r *StateRepository) DeleteNamespace(namespace string) (int64, error) {
	query := r.db.Rebind(`DELETE FROM profile_state WHERE namespace = ?`)

	result, err := r.db.Exec(query, namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to delete state namespace: %w", err)
	}

	return result.RowsAffected()
}
