package handlers

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler of the API
type Handlers struct {
	Health  *HealthHandler
	Profile *ProfileHandler
	State   *StateHandler
	Route   *RouteHandler
}

// RegisterRoutes mounts /health and the /api/v1 surface on router. auth guards the
// per-profile state endpoints.
func RegisterRoutes(router *gin.Engine, h Handlers, auth gin.HandlerFunc) {
	router.GET("/health", h.Health.Health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/profiles", h.Profile.CreateProfile)

		routes := v1.Group("/routes")
		{
			routes.POST("/encode", h.Route.EncodeRoute)
			routes.GET("/decode", h.Route.DecodeRoute)
		}
		v1.GET("/fare-types", h.Route.ListFareTypes)

		state := v1.Group("/state")
		state.Use(auth)
		{
			state.GET("", h.State.GetState)
			state.DELETE("", h.State.ClearState)

			state.PUT("/current-route", h.State.SetCurrentRoute)
			state.DELETE("/current-route", h.State.ClearCurrentRoute)

			state.POST("/saved-routes", h.State.SaveRoute)
			state.GET("/saved-routes/export", h.State.ExportSavedRoutes)
			state.POST("/saved-routes/import", h.State.ImportSavedRoutes)
			state.DELETE("/saved-routes/:index", h.State.RemoveSavedRoute)

			state.POST("/ticket-holder", h.State.AddTicket)
			state.PATCH("/ticket-holder/:order", h.State.UpdateTicket)
			state.DELETE("/ticket-holder/:order", h.State.RemoveTicket)

			state.POST("/history", h.State.AddHistory)
		}
	}
}
