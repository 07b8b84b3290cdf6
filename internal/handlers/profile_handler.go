package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/farert/farert-companion/internal/services"
	"github.com/farert/farert-companion/internal/utils"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProfileHandler issues anonymous profiles
type ProfileHandler struct {
	profiles  *services.ProfileService
	rateLimit *services.RateLimitService
	logger    logrus.FieldLogger
}

// NewProfileHandler creates a new profile handler. rateLimit may be nil.
func NewProfileHandler(profiles *services.ProfileService, rateLimit *services.RateLimitService, logger logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, rateLimit: rateLimit, logger: logger}
}

// CreateProfile handles POST /api/v1/profiles
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	clientIP := utils.GetRealIP(c)

	if h.rateLimit != nil {
		if err := h.rateLimit.CheckProfileRateLimit(clientIP); err != nil {
			var rateLimitErr *services.RateLimitError
			if errors.As(err, &rateLimitErr) {
				h.logger.WithField("ip", clientIP).Warn("Profile creation rate limited")
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":       "rate_limit_exceeded",
					"message":     rateLimitErr.Message,
					"retry_after": rateLimitErr.RetryAfter,
					"type":        rateLimitErr.Type,
				})
				return
			}
			h.logger.WithError(err).Error("Failed to check rate limit")
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to create profile",
			})
			return
		}
	}

	created, err := h.profiles.Create(utils.GetUserAgent(c))
	if err != nil {
		h.logger.WithError(err).WithField("ip", clientIP).Error("Failed to create profile")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create profile",
		})
		return
	}

	if h.rateLimit != nil {
		if err := h.rateLimit.RecordProfileRequest(clientIP); err != nil {
			h.logger.WithError(err).Warn("Failed to record profile request")
		}
	}

	c.JSON(http.StatusCreated, created)
}
