package models

import (
	"sort"
	"time"
)

// Durable storage keys. Existing stores are keyed by these names, so they must not change.
const (
	KeyCurrentRoute   = "farert_current_route"
	KeySavedRoutes    = "farert_saved_routes"
	KeyTicketHolder   = "farert_ticket_holder"
	KeyStationHistory = "farert_station_history"
)

// StateKeys lists every durable key owned by a state store
var StateKeys = []string{KeyCurrentRoute, KeySavedRoutes, KeyTicketHolder, KeyStationHistory}

// MaxStationHistory is the number of recently used stations kept
const MaxStationHistory = 100

// TicketHolderItem is one route held for fare comparison
type TicketHolderItem struct {
	Order       int      `json:"order"`
	RouteScript string   `json:"routeScript"`
	FareType    FareType `json:"fareType"`
}

// SortTicketHolder orders items by Order, keeping insertion order for ties
func SortTicketHolder(items []TicketHolderItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Order < items[j].Order
	})
}

// ExportDocument is the file format for exported saved routes
type ExportDocument struct {
	Version    string     `json:"version"`
	Routes     []string   `json:"routes"`
	ExportedAt *time.Time `json:"exportedAt,omitempty"`
}

// Snapshot is the whole durable state of one profile
type Snapshot struct {
	CurrentRoute   *string            `json:"current_route"`
	SavedRoutes    []string           `json:"saved_routes"`
	TicketHolder   []TicketHolderItem `json:"ticket_holder"`
	StationHistory []string           `json:"station_history"`
}
