package models

import "time"

// Profile is an anonymous client identity owning one durable state namespace
type Profile struct {
	ID         string    `json:"id" db:"id"`
	Platform   string    `json:"platform" db:"platform"`
	CreatedAt  time.Time `json:"created_at" db:"-"`
	LastSeenAt time.Time `json:"last_seen_at" db:"-"`
}
