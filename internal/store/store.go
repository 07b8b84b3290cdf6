// Package store keeps a profile's working state (current route, saved routes, ticket
// holder and station history) in reactive cells and mirrors every change into a
// durable key/value medium.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/farert/farert-companion/internal/engine"
	"github.com/farert/farert-companion/internal/models"
)

var (
	ErrIndexOutOfRange = errors.New("saved route index out of range")
	ErrTicketNotFound  = errors.New("ticket holder item not found")
	ErrInvalidFareType = errors.New("invalid fare type")
	ErrEmptyScript     = errors.New("route script is empty")
)

// Store is the state of one profile. Changes made before Initialize stay in memory
// only; after it, every change is flushed as a full snapshot.
type Store struct {
	CurrentRoute   *Cell[engine.Route]
	SavedRoutes    *Cell[[]string]
	TicketHolder   *Cell[[]models.TicketHolderItem]
	StationHistory *Cell[[]string]

	kv       KV
	newRoute engine.Factory
	logger   logrus.FieldLogger

	initMu  sync.Mutex
	flushMu sync.Mutex
	ready   atomic.Bool

	// unread holds keys whose durable value could not be read during Initialize.
	// Snapshots leave them alone so the stored value survives; ClearAll releases them.
	unread map[string]bool
}

// New wires a store over kv. A nil kv means there is no durable medium in this
// context: the store works in memory and never reads or writes.
func New(kv KV, newRoute engine.Factory, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{
		CurrentRoute:   NewCell[engine.Route](nil),
		SavedRoutes:    NewCell([]string{}),
		TicketHolder:   NewCell([]models.TicketHolderItem{}),
		StationHistory: NewCell([]string{}),
		kv:             kv,
		newRoute:       newRoute,
		unread:         make(map[string]bool),
		logger:         logger.WithField("component", "store"),
	}

	s.CurrentRoute.Subscribe(func(engine.Route) { s.persistSnapshot(false) })
	s.SavedRoutes.Subscribe(func([]string) { s.persistSnapshot(false) })
	s.TicketHolder.Subscribe(func([]models.TicketHolderItem) { s.persistSnapshot(false) })
	s.StationHistory.Subscribe(func([]string) { s.persistSnapshot(false) })

	return s
}

// Ready reports whether Initialize has completed.
func (s *Store) Ready() bool {
	return s.ready.Load()
}

// Initialize restores the four durable entries, marks the store ready and writes one
// full snapshot. Each restoration fails on its own without affecting the others. An
// entry that cannot be parsed is replaced by the default; an entry that cannot be read
// at all is never overwritten. Calling it again does nothing.
func (s *Store) Initialize() {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.ready.Load() {
		return
	}
	if s.kv == nil {
		s.logger.Warn("No durable storage available, state will not be restored or saved")
		return
	}

	s.restore(models.KeyCurrentRoute, s.restoreCurrentRoute)
	s.restore(models.KeySavedRoutes, func(raw string) error {
		var routes []string
		if err := json.Unmarshal([]byte(raw), &routes); err != nil {
			return err
		}
		s.SavedRoutes.Set(nonNil(routes))
		return nil
	})
	s.restore(models.KeyTicketHolder, func(raw string) error {
		var items []models.TicketHolderItem
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return err
		}
		if items == nil {
			items = []models.TicketHolderItem{}
		}
		s.TicketHolder.Set(items)
		return nil
	})
	s.restore(models.KeyStationHistory, func(raw string) error {
		var history []string
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return err
		}
		if len(history) > models.MaxStationHistory {
			history = history[:models.MaxStationHistory]
		}
		s.StationHistory.Set(nonNil(history))
		return nil
	})

	s.ready.Store(true)
	s.persistSnapshot(true)
}

func (s *Store) restore(key string, apply func(raw string) error) {
	log := s.logger.WithField("key", key)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Failed to restore state entry")
		}
	}()

	s.setUnread(key, true)
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		log.WithError(err).Error("Failed to read state entry, keeping stored value")
		return
	}
	s.setUnread(key, false)

	if !ok || raw == "" {
		return
	}
	if err := apply(raw); err != nil {
		log.WithError(err).Warn("Discarding unreadable state entry")
	}
}

func (s *Store) setUnread(key string, unread bool) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if unread {
		s.unread[key] = true
	} else {
		delete(s.unread, key)
	}
}

func (s *Store) restoreCurrentRoute(script string) error {
	route := s.newRoute()
	status := route.Build(script)
	if !status.OK() {
		return fmt.Errorf("route rejected by engine (status %s)", status)
	}
	s.CurrentRoute.Set(route)
	return nil
}

// persistSnapshot writes all four entries. Nothing is written before the store is
// ready unless force is set.
func (s *Store) persistSnapshot(force bool) {
	if s.kv == nil {
		return
	}
	if !force && !s.ready.Load() {
		return
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if route := s.CurrentRoute.Get(); route != nil {
		s.write(models.KeyCurrentRoute, func() error {
			return s.kv.Set(models.KeyCurrentRoute, route.Script())
		})
	} else {
		s.write(models.KeyCurrentRoute, func() error {
			return s.kv.Delete(models.KeyCurrentRoute)
		})
	}

	s.writeJSON(models.KeySavedRoutes, nonNil(s.SavedRoutes.Get()))
	s.writeJSON(models.KeyTicketHolder, s.TicketHolder.Get())
	s.writeJSON(models.KeyStationHistory, nonNil(s.StationHistory.Get()))
}

func (s *Store) writeJSON(key string, v any) {
	s.write(key, func() error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return s.kv.Set(key, string(data))
	})
}

// write runs fn for key unless the key is held back as unread. Callers hold flushMu.
func (s *Store) write(key string, fn func() error) {
	if s.unread[key] {
		s.logger.WithField("key", key).Debug("Skipping save of unread state entry")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{"key": key, "panic": r}).Error("Failed to save state entry")
		}
	}()
	if err := fn(); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to save state entry")
	}
}

// AddToHistory moves name to the front of the station history, keeping at most
// MaxStationHistory distinct names. Blank names are ignored.
func (s *Store) AddToHistory(name string) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return
	}

	s.StationHistory.Update(func(history []string) []string {
		next := make([]string, 0, len(history)+1)
		next = append(next, name)
		for _, h := range history {
			if h != name {
				next = append(next, h)
			}
		}
		if len(next) > models.MaxStationHistory {
			next = next[:models.MaxStationHistory]
		}
		return next
	})
}

// ClearAll empties every cell and removes the durable entries.
func (s *Store) ClearAll() {
	if s.kv == nil {
		return
	}

	s.CurrentRoute.Set(nil)
	s.SavedRoutes.Set([]string{})
	s.TicketHolder.Set([]models.TicketHolderItem{})
	s.StationHistory.Set([]string{})

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	for _, key := range models.StateKeys {
		delete(s.unread, key)
		s.write(key, func() error { return s.kv.Delete(key) })
	}
}

// SaveRoute appends script to the saved routes.
func (s *Store) SaveRoute(script string) error {
	script = strings.TrimSpace(script)
	if script == "" {
		return ErrEmptyScript
	}
	s.SavedRoutes.Update(func(routes []string) []string {
		return append(cloneStrings(routes), script)
	})
	return nil
}

// RemoveSavedRoute deletes the saved route at index.
func (s *Store) RemoveSavedRoute(index int) error {
	var err error
	s.SavedRoutes.Update(func(routes []string) []string {
		if index < 0 || index >= len(routes) {
			err = ErrIndexOutOfRange
			return routes
		}
		next := make([]string, 0, len(routes)-1)
		next = append(next, routes[:index]...)
		return append(next, routes[index+1:]...)
	})
	return err
}

// ImportRoutes appends the non-blank scripts and returns how many were added.
func (s *Store) ImportRoutes(scripts []string) int {
	var added []string
	for _, sc := range scripts {
		if sc = strings.TrimSpace(sc); sc != "" {
			added = append(added, sc)
		}
	}
	if len(added) == 0 {
		return 0
	}
	s.SavedRoutes.Update(func(routes []string) []string {
		return append(cloneStrings(routes), added...)
	})
	return len(added)
}

// AddTicket appends a ticket holder item ordered after every existing one.
func (s *Store) AddTicket(script string, fareType models.FareType) (models.TicketHolderItem, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return models.TicketHolderItem{}, ErrEmptyScript
	}
	if fareType == "" {
		fareType = models.FareTypeNormal
	}
	if !fareType.Valid() {
		return models.TicketHolderItem{}, ErrInvalidFareType
	}

	var item models.TicketHolderItem
	s.TicketHolder.Update(func(items []models.TicketHolderItem) []models.TicketHolderItem {
		order := 0
		for _, it := range items {
			if it.Order > order {
				order = it.Order
			}
		}
		item = models.TicketHolderItem{Order: order + 1, RouteScript: script, FareType: fareType}
		return append(cloneItems(items), item)
	})
	return item, nil
}

// SetTicketFareType changes the fare type of the item with the given order.
func (s *Store) SetTicketFareType(order int, fareType models.FareType) error {
	if !fareType.Valid() {
		return ErrInvalidFareType
	}
	err := ErrTicketNotFound
	s.TicketHolder.Update(func(items []models.TicketHolderItem) []models.TicketHolderItem {
		next := cloneItems(items)
		for i := range next {
			if next[i].Order == order {
				next[i].FareType = fareType
				err = nil
			}
		}
		return next
	})
	return err
}

// RemoveTicket deletes the item with the given order.
func (s *Store) RemoveTicket(order int) error {
	err := ErrTicketNotFound
	s.TicketHolder.Update(func(items []models.TicketHolderItem) []models.TicketHolderItem {
		next := make([]models.TicketHolderItem, 0, len(items))
		for _, it := range items {
			if it.Order == order {
				err = nil
				continue
			}
			next = append(next, it)
		}
		return next
	})
	return err
}

// Snapshot returns a copy of the whole state. Ticket holder items are sorted by order.
func (s *Store) Snapshot() models.Snapshot {
	snap := models.Snapshot{
		SavedRoutes:    cloneStrings(s.SavedRoutes.Get()),
		TicketHolder:   cloneItems(s.TicketHolder.Get()),
		StationHistory: cloneStrings(s.StationHistory.Get()),
	}
	if route := s.CurrentRoute.Get(); route != nil {
		script := route.Script()
		snap.CurrentRoute = &script
	}
	models.SortTicketHolder(snap.TicketHolder)
	return snap
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func cloneStrings(v []string) []string {
	out := make([]string, len(v))
	copy(out, v)
	return out
}

func cloneItems(v []models.TicketHolderItem) []models.TicketHolderItem {
	out := make([]models.TicketHolderItem, len(v))
	copy(out, v)
	return out
}
