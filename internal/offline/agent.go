// Package offline keeps a versioned copy of the web application's assets so pages
// keep working when the application origin cannot be reached.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CacheNamePrefix prefixes every cache generation name.
const CacheNamePrefix = "farert-cache-"

const defaultConcurrency = 8

// ErrNotInstalled is returned by Activate before a successful Install.
var ErrNotInstalled = errors.New("offline cache is not installed")

// Phase is the agent lifecycle state.
type Phase int32

const (
	PhaseNew Phase = iota
	PhaseInstalled
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseInstalled:
		return "installed"
	case PhaseActive:
		return "active"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Config configures an Agent.
type Config struct {
	Version     string
	Origin      *url.URL
	Manifest    *Manifest
	Storage     Storage
	Network     http.RoundTripper
	Logger      logrus.FieldLogger
	Concurrency int

	// MaxEntryBytes caps the bodies written to the cache. Larger responses pass
	// through uncached. Zero selects DefaultMaxEntryBytes.
	MaxEntryBytes int64
}

// Agent intercepts GET requests to the application origin and answers them from
// the current cache generation when the network fails.
type Agent struct {
	name        string
	origin      *url.URL
	manifest    *Manifest
	storage     Storage
	network     http.RoundTripper
	logger      logrus.FieldLogger
	concurrency int
	maxEntry    int64

	lifecycle sync.Mutex
	phase     atomic.Int32
	live      atomic.Pointer[string]
}

var _ http.RoundTripper = (*Agent)(nil)

// NewAgent creates an agent in PhaseNew.
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.Version == "" {
		return nil, errors.New("offline: version is required")
	}
	if cfg.Origin == nil || cfg.Origin.Host == "" {
		return nil, errors.New("offline: origin is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("offline: storage is required")
	}
	if cfg.Network == nil {
		cfg.Network = http.DefaultTransport
	}
	if cfg.Manifest == nil {
		cfg.Manifest = NewManifest()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxEntryBytes <= 0 {
		cfg.MaxEntryBytes = DefaultMaxEntryBytes
	}

	name := CacheNamePrefix + cfg.Version
	return &Agent{
		name:        name,
		origin:      cfg.Origin,
		manifest:    cfg.Manifest,
		storage:     cfg.Storage,
		network:     cfg.Network,
		logger:      cfg.Logger.WithFields(logrus.Fields{"component": "offline", "cache": name}),
		concurrency: cfg.Concurrency,
		maxEntry:    cfg.MaxEntryBytes,
	}, nil
}

// CacheName is the generation this agent installs and serves.
func (a *Agent) CacheName() string {
	return a.name
}

// Phase returns the current lifecycle phase.
func (a *Agent) Phase() Phase {
	return Phase(a.phase.Load())
}

// Manifest returns the precache manifest.
func (a *Agent) Manifest() *Manifest {
	return a.manifest
}

// Install fetches every manifest path from the origin. Any failed fetch fails the
// install and nothing is stored.
func (a *Agent) Install(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	paths := a.manifest.Paths()
	entries := make([]*Entry, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			entry, err := a.precache(gctx, p)
			if err != nil {
				return fmt.Errorf("precache %s: %w", p, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.WithError(err).Error("Offline cache install failed")
		return err
	}

	cache, err := a.storage.Open(ctx, a.name)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	batch := make(map[string]*Entry, len(paths))
	for i, p := range paths {
		batch[p] = entries[i]
	}
	if err := cache.PutAll(ctx, batch); err != nil {
		return fmt.Errorf("store precache: %w", err)
	}

	if a.Phase() == PhaseNew {
		a.phase.Store(int32(PhaseInstalled))
	}
	a.logger.WithField("assets", len(paths)).Info("Offline cache installed")
	return nil
}

func (a *Agent) precache(ctx context.Context, path string) (*Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.resolve(path), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.network.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	entry, err := EntryFromResponse(resp, a.maxEntry)
	if errors.Is(err, ErrEntryTooLarge) {
		resp.Body.Close()
	}
	return entry, err
}

func (a *Agent) resolve(path string) string {
	return a.origin.ResolveReference(&url.URL{Path: path}).String()
}

// Activate removes every other cache generation and starts serving from this one.
// Calling it again is harmless.
func (a *Agent) Activate(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.Phase() == PhaseNew {
		return ErrNotInstalled
	}

	if _, err := a.Sweep(ctx); err != nil {
		return err
	}

	name := a.name
	a.live.Store(&name)
	a.phase.Store(int32(PhaseActive))
	a.logger.Info("Offline cache activated")
	return nil
}

// Sweep deletes every cache generation other than CacheName and returns how many
// were removed.
func (a *Agent) Sweep(ctx context.Context) (int, error) {
	keys, err := a.storage.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list caches: %w", err)
	}

	var removed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, key := range keys {
		if key == a.name {
			continue
		}
		key := key
		g.Go(func() error {
			deleted, err := a.storage.Delete(gctx, key)
			if err != nil {
				return fmt.Errorf("delete cache %s: %w", key, err)
			}
			if deleted {
				removed.Add(1)
				a.logger.WithField("stale_cache", key).Info("Deleted stale offline cache")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(removed.Load()), err
	}
	return int(removed.Load()), nil
}

// RoundTrip implements http.RoundTripper.
func (a *Agent) RoundTrip(req *http.Request) (*http.Response, error) {
	return a.Fetch(req)
}

// Fetch answers req. Non-GET requests, and every request before activation, go to the
// network unchanged. Active GETs are served cache-first for precached paths and
// network-first otherwise, falling back to the stored copy, then the application
// shell, then a 404. Fetch never fails for an active GET.
func (a *Agent) Fetch(req *http.Request) (*http.Response, error) {
	live := a.live.Load()
	if req.Method != http.MethodGet || live == nil {
		return a.network.RoundTrip(req)
	}

	ctx := req.Context()
	log := a.logger.WithField("path", req.URL.Path)

	cache, err := a.storage.Open(ctx, *live)
	if err != nil {
		log.WithError(err).Warn("Failed to open offline cache")
		cache = nil
	}

	if cache != nil && a.manifest.Contains(req.URL.Path) {
		if entry := a.match(ctx, cache, req.URL.Path, log); entry != nil {
			return entry.Response(req), nil
		}
	}

	resp, err := a.network.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusOK && cache != nil {
		err = a.store(ctx, cache, requestKey(req.URL), resp, log)
	}
	if err == nil {
		return resp, nil
	}
	log.WithError(err).Debug("Network fetch failed, trying offline cache")

	if cache != nil {
		if entry := a.match(ctx, cache, requestKey(req.URL), log); entry != nil {
			return entry.Response(req), nil
		}
		if entry := a.match(ctx, cache, "/", log); entry != nil {
			return entry.Response(req), nil
		}
	}

	return notFound(req), nil
}

func (a *Agent) match(ctx context.Context, cache Cache, key string, log logrus.FieldLogger) *Entry {
	entry, err := cache.Match(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to read offline cache")
		return nil
	}
	return entry
}

// store writes resp through to the cache. It fails only when the response body
// could not be read, in which case resp is unusable. Oversized responses are left
// to stream through uncached.
func (a *Agent) store(ctx context.Context, cache Cache, key string, resp *http.Response, log logrus.FieldLogger) error {
	entry, err := EntryFromResponse(resp, a.maxEntry)
	if errors.Is(err, ErrEntryTooLarge) {
		log.WithField("key", key).Debug("Response too large for offline cache, passing through")
		return nil
	}
	if err != nil {
		return err
	}
	if err := cache.Put(ctx, key, entry); err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to write offline cache")
	}
	return nil
}

func requestKey(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

func notFound(req *http.Request) *http.Response {
	body := []byte(http.StatusText(http.StatusNotFound))
	return &http.Response{
		Status:        "404 Not Found",
		StatusCode:    http.StatusNotFound,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
