package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farert/farert-companion/internal/offline"
	"github.com/farert/farert-companion/internal/version"
)

// Pinger reports whether the durable store is reachable
type Pinger interface {
	Ping() error
}

// JobReporter reports the state of background jobs
type JobReporter interface {
	GetJobStatus() map[string]interface{}
}

// HealthHandler reports service health
type HealthHandler struct {
	db    Pinger
	agent *offline.Agent
	jobs  JobReporter
}

// NewHealthHandler creates a new health handler. Every dependency may be nil.
func NewHealthHandler(db Pinger, agent *offline.Agent, jobs JobReporter) *HealthHandler {
	return &HealthHandler{db: db, agent: agent, jobs: jobs}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	dbStatus := "memory"
	if h.db != nil {
		dbStatus = "healthy"
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
	}

	resp := gin.H{
		"status":    "healthy",
		"database":  dbStatus,
		"version":   version.Version,
		"timestamp": time.Now().Unix(),
	}
	if h.agent != nil {
		resp["cache"] = gin.H{
			"name":  h.agent.CacheName(),
			"phase": h.agent.Phase().String(),
			"paths": h.agent.Manifest().Len(),
		}
	}
	if h.jobs != nil {
		resp["jobs"] = h.jobs.GetJobStatus()
	}

	c.JSON(http.StatusOK, resp)
}
