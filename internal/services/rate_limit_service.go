package services

import (
	"fmt"
	"time"

	"github.com/farert/farert-companion/internal/database"
)

// RateLimitService limits how often a client may create profiles
type RateLimitService struct {
	db     database.DB
	config RateLimitConfig
	now    func() time.Time
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxIPRequests int           // Max profile creations per IP
	IPWindow      time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxIPRequests: 20,        // 20 profiles
		IPWindow:      time.Hour, // per hour
	}
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB, config RateLimitConfig) *RateLimitService {
	if config.MaxIPRequests <= 0 || config.IPWindow <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &RateLimitService{
		db:     db,
		config: config,
		now:    time.Now,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckProfileRateLimit checks whether ip has created too many profiles recently
func (s *RateLimitService) CheckProfileRateLimit(ip string) error {
	if ip == "" {
		return nil
	}

	count, lastRequest, err := s.getRequestCount(ip, "ip", s.config.IPWindow)
	if err != nil {
		return fmt.Errorf("failed to check IP rate limit: %w", err)
	}

	if count >= s.config.MaxIPRequests {
		retryAfter := lastRequest.Add(s.config.IPWindow)
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many profiles created from this IP address. Please try again after %s", retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
			Type:       "ip",
		}
	}

	return nil
}

// getRequestCount gets the number of requests within the time window
func (s *RateLimitService) getRequestCount(identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	windowStart := s.now().Add(-window).UnixMilli()

	query := s.db.Rebind(`
		SELECT COUNT(*), COALESCE(MAX(created_at), 0)
		FROM profile_rate_limits
		WHERE identifier = ?
		  AND identifier_type = ?
		  AND created_at > ?
	`)

	var count int
	var lastRequest int64
	if err := s.db.QueryRow(query, identifier, identifierType, windowStart).Scan(&count, &lastRequest); err != nil {
		return 0, time.Time{}, err
	}

	return count, time.UnixMilli(lastRequest), nil
}

// RecordProfileRequest records a profile creation for rate limiting
func (s *RateLimitService) RecordProfileRequest(ip string) error {
	if ip == "" {
		return nil
	}

	query := s.db.Rebind(`
		INSERT INTO profile_rate_limits (identifier, identifier_type, created_at)
		VALUES (?, ?, ?)
	`)

	if _, err := s.db.Exec(query, ip, "ip", s.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to record IP request: %w", err)
	}
	return nil
}

// CleanupExpiredRateLimits removes records older than the window
func (s *RateLimitService) CleanupExpiredRateLimits() (int64, error) {
	cutoff := s.now().Add(-s.config.IPWindow).UnixMilli()

	query := s.db.Rebind(`DELETE FROM profile_rate_limits WHERE created_at < ?`)

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
