package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/farert/farert-companion/internal/codec"
	"github.com/farert/farert-companion/internal/engine"
	"github.com/farert/farert-companion/internal/models"
	"github.com/farert/farert-companion/internal/share"
)

// RouteHandler encodes routes into share tokens and back
type RouteHandler struct {
	codec    *codec.Codec
	share    *share.Builder
	newRoute engine.Factory
	baseURL  string
	logger   logrus.FieldLogger
}

// NewRouteHandler creates a new route handler. An empty baseURL makes share links use
// the origin of the incoming request.
func NewRouteHandler(
	routeCodec *codec.Codec,
	shareBuilder *share.Builder,
	newRoute engine.Factory,
	baseURL string,
	logger logrus.FieldLogger,
) *RouteHandler {
	return &RouteHandler{
		codec:    routeCodec,
		share:    shareBuilder,
		newRoute: newRoute,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// EncodeRouteRequest represents the request to encode a route
type EncodeRouteRequest struct {
	Script string `json:"script" binding:"required"`
	// Segments limits the token to the leading segments; omitted means the whole route
	Segments *int `json:"segments"`
}

// EncodeRouteResponse represents an encoded route
type EncodeRouteResponse struct {
	Token    string `json:"token"`
	ShareURL string `json:"share_url"`
}

// DecodeRouteResponse represents a route restored from a token
type DecodeRouteResponse struct {
	Script    string `json:"script"`
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
	Segments  int    `json:"segments"`
}

// FareTypeResponse describes one selectable fare type
type FareTypeResponse struct {
	Value models.FareType `json:"value"`
	Label string          `json:"label"`
}

// EncodeRoute handles POST /api/v1/routes/encode
func (h *RouteHandler) EncodeRoute(c *gin.Context) {
	var req EncodeRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
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

	segments := -1
	if req.Segments != nil {
		segments = *req.Segments
	}

	token, err := h.codec.Encode(route, segments)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode route")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to encode route",
		})
		return
	}

	origin := share.FromRequest(c.Request)
	if h.baseURL != "" {
		origin = share.WithBaseURL(h.baseURL)
	}
	shareURL, err := h.share.BuildURL(route, segments, origin)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build share URL")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to build share URL",
		})
		return
	}

	c.JSON(http.StatusOK, EncodeRouteResponse{Token: token, ShareURL: shareURL})
}

// DecodeRoute handles GET /api/v1/routes/decode?r=<token>
func (h *RouteHandler) DecodeRoute(c *gin.Context) {
	token := c.Query("r")
	if token == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Query parameter r is required",
		})
		return
	}

	route := h.codec.Decode(token)
	if route == nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_token",
			Message: "The route link is invalid or no longer supported",
			Code:    "INVALID_ROUTE_TOKEN",
		})
		return
	}

	c.JSON(http.StatusOK, DecodeRouteResponse{
		Script:    route.Script(),
		Departure: route.Departure(),
		Arrival:   route.Arrival(),
		Segments:  route.SegmentCount(),
	})
}

// ListFareTypes handles GET /api/v1/fare-types
func (h *RouteHandler) ListFareTypes(c *gin.Context) {
	types := models.FareTypes()
	resp := make([]FareTypeResponse, 0, len(types))
	for _, ft := range types {
		resp = append(resp, FareTypeResponse{Value: ft, Label: ft.Label()})
	}
	c.JSON(http.StatusOK, gin.H{"fare_types": resp})
}
