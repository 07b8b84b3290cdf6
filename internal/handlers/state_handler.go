package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/farert/farert-companion/internal/engine"
	"github.com/farert/farert-companion/internal/exportdoc"
	"github.com/farert/farert-companion/internal/middleware"
	"github.com/farert/farert-companion/internal/models"
	"github.com/farert/farert-companion/internal/services"
	"github.com/farert/farert-companion/internal/store"
)

// StateHandler exposes the durable state of the calling profile
type StateHandler struct {
	profiles *services.ProfileService
	newRoute engine.Factory
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewStateHandler creates a new state handler
func NewStateHandler(profiles *services.ProfileService, newRoute engine.Factory, logger logrus.FieldLogger) *StateHandler {
	return &StateHandler{
		profiles: profiles,
		newRoute: newRoute,
		logger:   logger,
		now:      time.Now,
	}
}

// RouteScriptRequest carries a canonical route script
type RouteScriptRequest struct {
	Script string `json:"script" binding:"required"`
}

// AddTicketRequest represents the request to add a ticket holder item
type AddTicketRequest struct {
	Script   string          `json:"script" binding:"required"`
	FareType models.FareType `json:"fare_type"`
}

// UpdateTicketRequest represents the request to change a ticket's fare type
type UpdateTicketRequest struct {
	FareType models.FareType `json:"fare_type" binding:"required"`
}

// AddHistoryRequest represents the request to record a station lookup
type AddHistoryRequest struct {
	Station string `json:"station" binding:"required"`
}

func (h *StateHandler) loadStore(c *gin.Context) (*store.Store, bool) {
	profileID, ok := middleware.GetProfileID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Profile not found in context",
		})
		return nil, false
	}

	st, err := h.profiles.Store(profileID)
	if errors.Is(err, services.ErrProfileNotFound) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Profile no longer exists. Create a new profile.",
			Code:    "PROFILE_NOT_FOUND",
		})
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).WithField("profile_id", profileID.String()).Error("Failed to load profile state")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load profile state",
		})
		return nil, false
	}

	return st, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return false
	}
	return true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid " + name,
		})
		return 0, false
	}
	return v, true
}

// GetState handles GET /api/v1/state
func (h *StateHandler) GetState(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, st.Snapshot())
}

// ClearState handles DELETE /api/v1/state
func (h *StateHandler) ClearState(c *gin.Context) {
	profileID, ok := middleware.GetProfileID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Profile not found in context",
		})
		return
	}
	if err := h.profiles.Clear(profileID); err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "Profile no longer exists. Create a new profile.",
				Code:    "PROFILE_NOT_FOUND",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to clear profile state")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to clear state",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// SetCurrentRoute handles PUT /api/v1/state/current-route
func (h *StateHandler) SetCurrentRoute(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	var req RouteScriptRequest
	if !bindJSON(c, &req) {
		return
	}

	route := h.newRoute()
	if status := route.Build(req.Script); !status.OK() {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_route",
			Message: "The route could not be built",
			Code:    status.String(),
		})
		return
	}

	st.CurrentRoute.Set(route)
	c.JSON(http.StatusOK, st.Snapshot())
}

// ClearCurrentRoute handles DELETE /api/v1/state/current-route
func (h *StateHandler) ClearCurrentRoute(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	st.CurrentRoute.Set(nil)
	c.Status(http.StatusNoContent)
}

// SaveRoute handles POST /api/v1/state/saved-routes
func (h *StateHandler) SaveRoute(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	var req RouteScriptRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := st.SaveRoute(req.Script); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"saved_routes": st.SavedRoutes.Get()})
}

// RemoveSavedRoute handles DELETE /api/v1/state/saved-routes/:index
func (h *StateHandler) RemoveSavedRoute(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	index, ok := intParam(c, "index")
	if !ok {
		return
	}

	if err := st.RemoveSavedRoute(index); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved_routes": st.SavedRoutes.Get()})
}

// ExportSavedRoutes handles GET /api/v1/state/saved-routes/export
func (h *StateHandler) ExportSavedRoutes(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}

	data, err := exportdoc.Export(st.SavedRoutes.Get(), h.now())
	if err != nil {
		h.logger.WithError(err).Error("Failed to export saved routes")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to export saved routes",
		})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+exportdoc.DefaultFilename+`"`)
	c.Data(http.StatusOK, "application/json", data)
}

// ImportSavedRoutes handles POST /api/v1/state/saved-routes/import
func (h *StateHandler) ImportSavedRoutes(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}

	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Failed to read request body",
		})
		return
	}

	routes, err := exportdoc.Import(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_export",
			Message: err.Error(),
			Code:    importErrorCode(err),
		})
		return
	}

	imported := st.ImportRoutes(routes)
	c.JSON(http.StatusOK, gin.H{
		"imported":     imported,
		"saved_routes": st.SavedRoutes.Get(),
	})
}

func importErrorCode(err error) string {
	var versionErr *exportdoc.VersionError
	switch {
	case errors.Is(err, exportdoc.ErrNotJSON):
		return "NOT_JSON"
	case errors.Is(err, exportdoc.ErrMissingVersion):
		return "MISSING_VERSION"
	case errors.As(err, &versionErr):
		return "UNSUPPORTED_VERSION"
	case errors.Is(err, exportdoc.ErrMalformedRoutes):
		return "MALFORMED_ROUTES"
	default:
		return ""
	}
}

// AddTicket handles POST /api/v1/state/ticket-holder
func (h *StateHandler) AddTicket(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	var req AddTicketRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := st.AddTicket(req.Script, req.FareType)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateTicket handles PATCH /api/v1/state/ticket-holder/:order
func (h *StateHandler) UpdateTicket(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	order, ok := intParam(c, "order")
	if !ok {
		return
	}
	var req UpdateTicketRequest
	if !bindJSON(c, &req) {
		return
	}

	err := st.SetTicketFareType(order, req.FareType)
	switch {
	case errors.Is(err, store.ErrInvalidFareType):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	case errors.Is(err, store.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket_holder": st.Snapshot().TicketHolder})
}

// RemoveTicket handles DELETE /api/v1/state/ticket-holder/:order
func (h *StateHandler) RemoveTicket(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	order, ok := intParam(c, "order")
	if !ok {
		return
	}

	if err := st.RemoveTicket(order); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// AddHistory handles POST /api/v1/state/history
func (h *StateHandler) AddHistory(c *gin.Context) {
	st, ok := h.loadStore(c)
	if !ok {
		return
	}
	var req AddHistoryRequest
	if !bindJSON(c, &req) {
		return
	}

	st.AddToHistory(req.Station)
	c.JSON(http.StatusOK, gin.H{"station_history": st.StationHistory.Get()})
}
