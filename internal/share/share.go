// Package share builds public links that reopen a route in the web application.
package share

import (
	"net/http"
	"strings"

	"github.com/farert/farert-companion/internal/engine"
)

// DetailPath is the application page that opens a shared route.
const DetailPath = "/detail"

// Encoder turns a route into a URL token.
type Encoder interface {
	Encode(route engine.Route, tailSegmentCount int) (string, error)
}

// Builder produces share URLs.
type Builder struct {
	encoder Encoder
}

// NewBuilder creates a builder over encoder.
func NewBuilder(encoder Encoder) *Builder {
	return &Builder{encoder: encoder}
}

type options struct {
	baseURL *string
	request *http.Request
}

// Option customises how the origin of a share URL is chosen.
type Option func(*options)

// WithBaseURL uses base as the origin. It wins over FromRequest, and may be empty.
func WithBaseURL(base string) Option {
	return func(o *options) { o.baseURL = &base }
}

// FromRequest takes the origin from the request the link is built for.
func FromRequest(r *http.Request) Option {
	return func(o *options) { o.request = r }
}

// BuildURL returns <origin>/detail?r=<token>. Without a base URL or request the
// origin is empty and the result is a relative link.
func (b *Builder) BuildURL(route engine.Route, tailSegmentCount int, opts ...Option) (string, error) {
	token, err := b.encoder.Encode(route, tailSegmentCount)
	if err != nil {
		return "", err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	origin := ""
	switch {
	case o.baseURL != nil:
		origin = *o.baseURL
	case o.request != nil:
		origin = RequestOrigin(o.request)
	}
	origin = strings.TrimSuffix(origin, "/")

	return origin + DetailPath + "?r=" + token, nil
}

// RequestOrigin reconstructs scheme://host for r, honouring reverse proxy headers.
// It returns "" when the host is unknown.
func RequestOrigin(r *http.Request) string {
	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(proto)
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
