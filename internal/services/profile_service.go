package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/farert/farert-companion/internal/engine"
	"github.com/farert/farert-companion/internal/models"
	"github.com/farert/farert-companion/internal/store"
	"github.com/farert/farert-companion/internal/utils"
	"github.com/farert/farert-companion/pkg/jwt"
)

// ErrProfileNotFound is returned when a token names a profile that no longer exists
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository is the durable profile registry. It is optional: without it any
// validly signed profile id is accepted.
type ProfileRepository interface {
	CreateProfile(profile *models.Profile) error
	GetProfile(id string) (*models.Profile, error)
	TouchProfile(id string, at time.Time) error
	DeleteProfile(id string) error
}

// CreatedProfile is returned when a new profile is issued
type CreatedProfile struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoreCacheConfig bounds the profile stores held in memory. A zero MaxLoaded or
// IdleTTL disables that limit.
type StoreCacheConfig struct {
	MaxLoaded int
	IdleTTL   time.Duration
}

// DefaultStoreCacheConfig is applied by NewProfileService
var DefaultStoreCacheConfig = StoreCacheConfig{
	MaxLoaded: 1000,
	IdleTTL:   30 * time.Minute,
}

// loadedStore is one registry slot. done is closed once store or err is set.
type loadedStore struct {
	done     chan struct{}
	store    *store.Store
	err      error
	lastUsed time.Time
}

// ProfileService owns one state store per profile
type ProfileService struct {
	backend    store.Backend
	profiles   ProfileRepository
	newRoute   engine.Factory
	jwtService *jwt.Service
	logger     logrus.FieldLogger
	now        func() time.Time
	cache      StoreCacheConfig

	mu     sync.Mutex
	stores map[uuid.UUID]*loadedStore
}

// NewProfileService creates a new ProfileService. profiles may be nil.
func NewProfileService(
	backend store.Backend,
	profiles ProfileRepository,
	newRoute engine.Factory,
	jwtService *jwt.Service,
	logger logrus.FieldLogger,
) *ProfileService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProfileService{
		backend:    backend,
		profiles:   profiles,
		newRoute:   newRoute,
		jwtService: jwtService,
		logger:     logger.WithField("component", "profiles"),
		now:        time.Now,
		cache:      DefaultStoreCacheConfig,
		stores:     make(map[uuid.UUID]*loadedStore),
	}
}

// WithStoreCache replaces the in-memory store limits
func (s *ProfileService) WithStoreCache(cfg StoreCacheConfig) *ProfileService {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = cfg
	return s
}

// Create registers a new profile and signs a token for it
func (s *ProfileService) Create(userAgent string) (*CreatedProfile, error) {
	id := uuid.New()
	device := utils.ParseUserAgent(userAgent)
	now := s.now().UTC()

	if s.profiles != nil {
		profile := &models.Profile{
			ID:         id.String(),
			Platform:   device.Platform,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		if err := s.profiles.CreateProfile(profile); err != nil {
			return nil, err
		}
	}

	token, err := s.jwtService.GenerateProfileToken(id)
	if err != nil {
		return nil, fmt.Errorf("failed to sign profile token: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"profile_id":  id.String(),
		"platform":    device.Platform,
		"device_type": device.DeviceType,
	}).Info("Profile created")

	return &CreatedProfile{
		ProfileID: id,
		Token:     token,
		Platform:  device.Platform,
		ExpiresAt: now.Add(s.jwtService.Expiry()),
	}, nil
}

// Store returns the initialized state store of profile id, loading it on first use.
// Concurrent first calls for the same id share one load; loads of different ids do
// not wait on each other.
func (s *ProfileService) Store(id uuid.UUID) (*store.Store, error) {
	s.mu.Lock()
	if slot, ok := s.stores[id]; ok {
		slot.lastUsed = s.now()
		s.mu.Unlock()
		<-slot.done
		return slot.store, slot.err
	}
	slot := &loadedStore{done: make(chan struct{}), lastUsed: s.now()}
	s.stores[id] = slot
	s.mu.Unlock()

	st, err := s.load(id)

	s.mu.Lock()
	slot.store, slot.err = st, err
	if err != nil {
		delete(s.stores, id)
	}
	s.evictLocked()
	s.mu.Unlock()
	close(slot.done)

	return st, err
}

func (s *ProfileService) load(id uuid.UUID) (*store.Store, error) {
	if s.profiles != nil {
		profile, err := s.profiles.GetProfile(id.String())
		if err != nil {
			return nil, err
		}
		if profile == nil {
			return nil, ErrProfileNotFound
		}
		if err := s.profiles.TouchProfile(id.String(), s.now()); err != nil {
			s.logger.WithError(err).WithField("profile_id", id.String()).Warn("Failed to record profile activity")
		}
	}

	st := store.New(
		store.Namespaced(s.backend, id.String()),
		s.newRoute,
		s.logger.WithField("profile_id", id.String()),
	)
	st.Initialize()
	return st, nil
}

// EvictIdle drops stores unused for longer than the idle TTL and returns how many
// were dropped.
func (s *ProfileService) EvictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked()
}

// evictLocked drops idle stores, then the least recently used ones until the
// registry fits MaxLoaded. Slots still loading are never dropped.
func (s *ProfileService) evictLocked() int {
	evicted := 0
	now := s.now()

	if s.cache.IdleTTL > 0 {
		for id, slot := range s.stores {
			if slot.store != nil && now.Sub(slot.lastUsed) > s.cache.IdleTTL {
				delete(s.stores, id)
				evicted++
			}
		}
	}

	for s.cache.MaxLoaded > 0 && len(s.stores) > s.cache.MaxLoaded {
		var (
			oldestID uuid.UUID
			oldest   *loadedStore
		)
		for id, slot := range s.stores {
			if slot.store == nil {
				continue
			}
			if oldest == nil || slot.lastUsed.Before(oldest.lastUsed) {
				oldestID, oldest = id, slot
			}
		}
		if oldest == nil {
			break
		}
		delete(s.stores, oldestID)
		evicted++
	}

	if evicted > 0 {
		s.logger.WithField("evicted", evicted).Debug("Evicted profile stores")
	}
	return evicted
}

// Clear wipes every durable entry of profile id
func (s *ProfileService) Clear(id uuid.UUID) error {
	st, err := s.Store(id)
	if err != nil {
		return err
	}
	st.ClearAll()
	s.logger.WithField("profile_id", id.String()).Info("Profile state cleared")
	return nil
}

// Loaded returns how many profile stores are held in memory
func (s *ProfileService) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stores)
}
