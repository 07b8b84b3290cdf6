package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsset struct {
	status int
	body   string
}

// fakeNetwork serves assets by path and can be switched offline.
type fakeNetwork struct {
	mu      sync.Mutex
	assets  map[string]fakeAsset
	offline bool
	calls   []string
}

func newFakeNetwork(assets map[string]fakeAsset) *fakeNetwork {
	return &fakeNetwork{assets: assets}
}

func (f *fakeNetwork) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method+" "+req.URL.Path)
	if f.offline {
		return nil, errors.New("network unreachable")
	}
	asset, ok := f.assets[req.URL.Path]
	if !ok {
		asset = fakeAsset{status: http.StatusNotFound, body: "missing"}
	}
	return &http.Response{
		StatusCode: asset.status,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(asset.body)),
		Request:    req,
	}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var testOrigin = &url.URL{Scheme: "https", Host: "app.farert.example"}

func newTestAgent(t *testing.T, network http.RoundTripper, storage Storage, paths ...string) *Agent {
	t.Helper()
	agent, err := NewAgent(Config{
		Version:  "v2",
		Origin:   testOrigin,
		Manifest: NewManifest(paths),
		Storage:  storage,
		Network:  network,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	return agent
}

func get(t *testing.T, rt http.RoundTripper, path string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, testOrigin.String()+path, nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func defaultAssets() map[string]fakeAsset {
	return map[string]fakeAsset{
		"/":              {http.StatusOK, "<html>shell</html>"},
		"/_app/app.js":   {http.StatusOK, "console.log('app')"},
		"/manifest.json": {http.StatusOK, "{}"},
	}
}

func TestManifest(t *testing.T) {
	m := NewManifest([]string{"/", "_app/app.js", " ", "/"}, []string{"/favicon.png", "/_app/app.js"})
	assert.Equal(t, []string{"/", "/_app/app.js", "/favicon.png"}, m.Paths())
	assert.True(t, m.Contains("/_app/app.js"))
	assert.False(t, m.Contains("/other"))

	extended := m.With("/extra", "/")
	assert.Equal(t, 4, extended.Len())
	assert.Equal(t, 3, m.Len())
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "precache.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
build = ["/_app/immutable/start.js", "/_app/version.json"]
static = ["/favicon.png", "/manifest.json"]
`), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/_app/immutable/start.js", "/_app/version.json", "/favicon.png", "/manifest.json"}, m.Paths())

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestAgent_CacheName(t *testing.T) {
	agent := newTestAgent(t, newFakeNetwork(nil), NewMemoryStorage())
	assert.Equal(t, "farert-cache-v2", agent.CacheName())
	assert.Equal(t, PhaseNew, agent.Phase())
}

func TestNewAgent_Validation(t *testing.T) {
	_, err := NewAgent(Config{Origin: testOrigin, Storage: NewMemoryStorage()})
	assert.Error(t, err)
	_, err = NewAgent(Config{Version: "v1", Storage: NewMemoryStorage()})
	assert.Error(t, err)
	_, err = NewAgent(Config{Version: "v1", Origin: testOrigin})
	assert.Error(t, err)
}

func TestAgent_InstallStoresEveryAsset(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	agent := newTestAgent(t, newFakeNetwork(defaultAssets()), storage, "/", "/_app/app.js", "/manifest.json")

	require.NoError(t, agent.Install(ctx))
	assert.Equal(t, PhaseInstalled, agent.Phase())

	cache, err := storage.Open(ctx, agent.CacheName())
	require.NoError(t, err)
	for _, p := range []string{"/", "/_app/app.js", "/manifest.json"} {
		entry, err := cache.Match(ctx, p)
		require.NoError(t, err)
		require.NotNil(t, entry, p)
		assert.Equal(t, Digest(entry.Body), entry.Digest)
	}
}

func TestAgent_InstallIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	assets := defaultAssets()
	assets["/_app/app.js"] = fakeAsset{http.StatusInternalServerError, "boom"}
	storage := NewMemoryStorage()
	agent := newTestAgent(t, newFakeNetwork(assets), storage, "/", "/_app/app.js", "/manifest.json")

	err := agent.Install(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/_app/app.js")
	assert.Equal(t, PhaseNew, agent.Phase())

	keys, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, agent.Activate(ctx), ErrNotInstalled)
}

func TestAgent_ActivateDeletesOtherGenerations(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	for _, name := range []string{"farert-cache-v1", "farert-cache-v0", "unrelated"} {
		_, err := storage.Open(ctx, name)
		require.NoError(t, err)
	}

	agent := newTestAgent(t, newFakeNetwork(defaultAssets()), storage, "/")
	require.NoError(t, agent.Install(ctx))
	require.NoError(t, agent.Activate(ctx))
	assert.Equal(t, PhaseActive, agent.Phase())

	keys, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"farert-cache-v2"}, keys)

	require.NoError(t, agent.Activate(ctx))
	removed, err := agent.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestAgent_FetchBeforeActivatePassesThrough(t *testing.T) {
	network := newFakeNetwork(defaultAssets())
	agent := newTestAgent(t, network, NewMemoryStorage(), "/")
	require.NoError(t, agent.Install(context.Background()))

	network.setOffline(true)
	req := httptest.NewRequest(http.MethodGet, testOrigin.String()+"/", nil)
	_, err := agent.RoundTrip(req)
	assert.Error(t, err)
}

func activeAgent(t *testing.T, network *fakeNetwork, paths ...string) *Agent {
	t.Helper()
	agent := newTestAgent(t, network, NewMemoryStorage(), paths...)
	require.NoError(t, agent.Install(context.Background()))
	require.NoError(t, agent.Activate(context.Background()))
	return agent
}

func TestAgent_PrecachedPathIsCacheFirst(t *testing.T) {
	network := newFakeNetwork(defaultAssets())
	agent := activeAgent(t, network, "/", "/_app/app.js")

	network.assets["/_app/app.js"] = fakeAsset{http.StatusOK, "changed"}
	network.calls = nil

	resp, body := get(t, agent, "/_app/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log('app')", body)
	assert.Equal(t, strconv.Quote(Digest([]byte(body))), resp.Header.Get("ETag"))
	assert.Empty(t, network.calls)
}

func TestAgent_OfflineFallbacks(t *testing.T) {
	network := newFakeNetwork(defaultAssets())
	agent := activeAgent(t, network, "/", "/_app/app.js")
	network.setOffline(true)

	resp, body := get(t, agent, "/_app/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log('app')", body)

	resp, body = get(t, agent, "/detail?r=abc")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>shell</html>", body)
}

func TestAgent_OfflineWithoutShellIs404(t *testing.T) {
	network := newFakeNetwork(defaultAssets())
	agent := activeAgent(t, network, "/_app/app.js")
	network.setOffline(true)

	resp, _ := get(t, agent, "/settings")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgent_WritesThroughSuccessfulResponses(t *testing.T) {
	network := newFakeNetwork(defaultAssets())
	network.assets["/api/data.json"] = fakeAsset{http.StatusOK, `{"n":1}`}
	agent := activeAgent(t, network, "/")

	resp, body := get(t, agent, "/api/data.json?x=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"n":1}`, body)

	_, _ = get(t, agent, "/missing.json")

	network.setOffline(true)
	_, body = get(t, agent, "/api/data.json?x=1")
	assert.Equal(t, `{"n":1}`, body)

	// Non-200 responses are not stored, so the shell is served instead.
	_, body = get(t, agent, "/missing.json")
	assert.Equal(t, "<html>shell</html>", body)
}

func TestEntryFromResponse_Limit(t *testing.T) {
	newResp := func(body string, length int64) *http.Response {
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{},
			Body:          io.NopCloser(strings.NewReader(body)),
			ContentLength: length,
		}
	}

	resp := newResp("0123456789", -1)
	entry, err := EntryFromResponse(resp, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(entry.Body))

	// Streamed bodies over the limit are handed back whole.
	resp = newResp("0123456789", -1)
	_, err = EntryFromResponse(resp, 4)
	assert.ErrorIs(t, err, ErrEntryTooLarge)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))

	// A declared length over the limit is rejected without reading.
	resp = newResp("0123456789", 10)
	_, err = EntryFromResponse(resp, 4)
	assert.ErrorIs(t, err, ErrEntryTooLarge)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))

	entry, err = EntryFromResponse(newResp(strings.Repeat("x", 64), -1), 0)
	require.NoError(t, err)
	assert.Len(t, entry.Body, 64)
}

func TestAgent_OversizedResponsesPassThroughUncached(t *testing.T) {
	network := newFakeNetwork(defaultAssets())
	big := strings.Repeat("東京,東海道線,", 16)
	network.assets["/api/big.json"] = fakeAsset{http.StatusOK, big}

	agent, err := NewAgent(Config{
		Version:       "v2",
		Origin:        testOrigin,
		Manifest:      NewManifest([]string{"/"}),
		Storage:       NewMemoryStorage(),
		Network:       network,
		Logger:        quietLogger(),
		MaxEntryBytes: 64,
	})
	require.NoError(t, err)
	require.NoError(t, agent.Install(context.Background()))
	require.NoError(t, agent.Activate(context.Background()))

	resp, body := get(t, agent, "/api/big.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, big, body)

	network.setOffline(true)
	_, body = get(t, agent, "/api/big.json")
	assert.Equal(t, "<html>shell</html>", body)
}

func TestAgent_NonGetPassesThrough(t *testing.T) {
	network := newFakeNetwork(defaultAssets())
	agent := activeAgent(t, network, "/")
	network.setOffline(true)

	req := httptest.NewRequest(http.MethodPost, testOrigin.String()+"/", strings.NewReader("x"))
	_, err := agent.RoundTrip(req)
	assert.Error(t, err)
}

func TestGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)

	network := newFakeNetwork(defaultAssets())
	agent := activeAgent(t, network, "/", "/_app/app.js")
	network.setOffline(true)

	router := gin.New()
	router.NoRoute(Gateway(agent, testOrigin, quietLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_app/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log('app')", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("ETag"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("a=1")))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGateway_DirectProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	network := newFakeNetwork(defaultAssets())
	router := gin.New()
	router.NoRoute(Gateway(network, testOrigin, quietLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/manifest.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "{}", w.Body.String())
	assert.Equal(t, []string{"GET /manifest.json"}, network.calls)
}
