package share

import (
	"crypto/tls"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farert/farert-companion/internal/codec"
	"github.com/farert/farert-companion/internal/engine"
	"github.com/farert/farert-companion/internal/engine/script"
)

func newBuilder() (*Builder, *codec.Codec) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	c := codec.New(script.New(nil).NewRoute, l)
	return NewBuilder(c), c
}

func route(t *testing.T, s string) engine.Route {
	t.Helper()
	r := script.New(nil).NewRoute()
	require.True(t, r.Build(s).OK())
	return r
}

func TestBuildURL_BaseURL(t *testing.T) {
	b, c := newBuilder()
	r := route(t, "東京,東海道線,新大阪")

	url, err := b.BuildURL(r, -1, WithBaseURL("https://app.test/"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://app.test/detail?r="), url)

	decoded := c.Decode(strings.TrimPrefix(url, "https://app.test/detail?r="))
	require.NotNil(t, decoded)
	assert.Equal(t, "東京,東海道線,新大阪", decoded.Script())
}

func TestBuildURL_BaseURLWinsOverRequest(t *testing.T) {
	b, _ := newBuilder()
	req := httptest.NewRequest("GET", "http://ignored.example/api", nil)

	url, err := b.BuildURL(route(t, "東京"), -1, FromRequest(req), WithBaseURL(""))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/detail?r="), url)
}

func TestBuildURL_FromRequest(t *testing.T) {
	b, _ := newBuilder()

	req := httptest.NewRequest("GET", "http://farert.example/api/v1/routes/encode", nil)
	url, err := b.BuildURL(route(t, "東京"), -1, FromRequest(req))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://farert.example/detail?r="), url)

	req.Header.Set("X-Forwarded-Proto", "https, http")
	req.Header.Set("X-Forwarded-Host", "share.farert.example")
	url, err = b.BuildURL(route(t, "東京"), -1, FromRequest(req))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://share.farert.example/detail?r="), url)
}

func TestBuildURL_NoOrigin(t *testing.T) {
	b, _ := newBuilder()
	url, err := b.BuildURL(route(t, "東京,東海道線,品川"), 0)
	require.NoError(t, err)
	token, err := codec.CompressToURIComponent("東京")
	require.NoError(t, err)
	assert.Equal(t, "/detail?r="+token, url)
}

func TestBuildURL_NilRoute(t *testing.T) {
	b, _ := newBuilder()
	_, err := b.BuildURL(nil, -1)
	assert.ErrorIs(t, err, codec.ErrNilRoute)
}

func TestRequestOrigin_TLS(t *testing.T) {
	req := httptest.NewRequest("GET", "https://secure.example/", nil)
	req.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://secure.example", RequestOrigin(req))

	req.Host = ""
	assert.Equal(t, "", RequestOrigin(req))
}
