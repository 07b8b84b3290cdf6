package offline

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Entry is a stored response.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	Digest   string
	StoredAt time.Time
}

// Digest returns the hex blake2b-256 digest of body.
func Digest(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// DefaultMaxEntryBytes caps a captured response body when no other limit is set.
const DefaultMaxEntryBytes = 8 << 20

// ErrEntryTooLarge is returned for responses whose body exceeds the capture limit.
var ErrEntryTooLarge = errors.New("response too large to cache")

type readCloser struct {
	io.Reader
	io.Closer
}

// EntryFromResponse captures resp. The response body is read fully and replaced so
// resp can still be returned to the caller. A body over limit bytes is not captured:
// ErrEntryTooLarge is returned and resp.Body still yields the whole body. A limit of
// zero or less means no limit.
func EntryFromResponse(resp *http.Response, limit int64) (*Entry, error) {
	var body []byte
	if resp.Body != nil {
		if limit > 0 && resp.ContentLength > limit {
			return nil, ErrEntryTooLarge
		}

		src := io.Reader(resp.Body)
		if limit > 0 {
			src = io.LimitReader(resp.Body, limit+1)
		}
		var err error
		body, err = io.ReadAll(src)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if limit > 0 && int64(len(body)) > limit {
			resp.Body = readCloser{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
			return nil, ErrEntryTooLarge
		}
		resp.Body.Close()
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		Digest:   Digest(body),
		StoredAt: time.Now().UTC(),
	}, nil
}

// Response builds a fresh response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("ETag") == "" && e.Digest != "" {
		header.Set("ETag", strconv.Quote(e.Digest))
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}

// Cache is one named generation of stored responses.
type Cache interface {
	// Match returns nil without error when key is not stored.
	Match(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, entries map[string]*Entry) error
}

// Storage holds the named caches.
type Storage interface {
	// Open returns the named cache, creating it when missing.
	Open(ctx context.Context, name string) (Cache, error)
	Keys(ctx context.Context) ([]string, error)
	// Delete removes the named cache and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu     sync.Mutex
	caches map[string]*memoryCache
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{entries: make(map[string]*Entry)}
		s.caches[name] = c
	}
	return c, nil
}

func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.caches))
	for k := range s.caches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	delete(s.caches, name)
	return ok, nil
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func (c *memoryCache) Match(_ context.Context, key string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return e.clone(), nil
}

func (c *memoryCache) Put(_ context.Context, key string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry.clone()
	return nil
}

func (c *memoryCache) PutAll(_ context.Context, entries map[string]*Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range entries {
		c.entries[k] = e.clone()
	}
	return nil
}
