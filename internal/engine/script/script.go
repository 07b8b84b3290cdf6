// Package script is the in-process engine used by the companion server. It
// understands the canonical route form structurally (alternating station and line
// tokens) and can optionally reject names missing from a known catalog. Fare rules
// stay with the external engine.
package script

import (
	"strings"

	"github.com/farert/farert-companion/internal/engine"
)

// Build result codes.
const (
	CodeOK             = 0
	CodeEmpty          = -1
	CodeEvenTokenCount = -2
	CodeEmptyToken     = -3
	CodeUnknownStation = -4
	CodeUnknownLine    = -5
)

// Catalog restricts the station and line names a route may use. A nil set
// accepts any name.
type Catalog struct {
	Stations map[string]struct{}
	Lines    map[string]struct{}
}

// NewCatalog builds a catalog from name lists. Empty lists leave that side open.
func NewCatalog(stations, lines []string) *Catalog {
	return &Catalog{Stations: toSet(stations), Lines: toSet(lines)}
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (c *Catalog) hasStation(name string) bool {
	return c == nil || contains(c.Stations, name)
}

func (c *Catalog) hasLine(name string) bool {
	return c == nil || contains(c.Lines, name)
}

func contains(set map[string]struct{}, name string) bool {
	if set == nil {
		return true
	}
	_, ok := set[name]
	return ok
}

// Engine constructs structural routes sharing one catalog.
type Engine struct {
	catalog *Catalog
}

// New creates an engine. catalog may be nil.
func New(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// NewRoute satisfies engine.Factory.
func (e *Engine) NewRoute() engine.Route {
	return &Route{catalog: e.catalog}
}

// Route is a structural route: tokens[0] is the departure, then line/station pairs.
type Route struct {
	catalog *Catalog
	tokens  []string
}

var _ engine.Route = (*Route)(nil)

// Build validates and installs script. On failure the route keeps its previous state.
func (r *Route) Build(s string) engine.Status {
	tokens := engine.Tokens(s)
	if code := r.validate(tokens); code != CodeOK {
		return engine.Code(code)
	}
	r.tokens = tokens
	return engine.Code(CodeOK)
}

func (r *Route) validate(tokens []string) int {
	if len(tokens) == 0 {
		return CodeEmpty
	}
	if len(tokens)%2 == 0 {
		return CodeEvenTokenCount
	}
	for i, tok := range tokens {
		if tok == "" {
			return CodeEmptyToken
		}
		if i%2 == 0 {
			if !r.catalog.hasStation(tok) {
				return CodeUnknownStation
			}
		} else if !r.catalog.hasLine(tok) {
			return CodeUnknownLine
		}
	}
	return CodeOK
}

// Script returns the canonical form.
func (r *Route) Script() string {
	return strings.Join(r.tokens, ",")
}

// AssignTail copies the leading station of src plus its first count segments.
func (r *Route) AssignTail(src engine.Route, count int) {
	tokens := engine.Tokens(src.Script())
	// Compare against the segment count so a huge count cannot overflow 1+2*count.
	if count >= 0 && count < (len(tokens)-1)/2 {
		tokens = tokens[:1+2*count]
	}
	r.tokens = append([]string(nil), tokens...)
}

// SegmentCount returns the number of line/station pairs.
func (r *Route) SegmentCount() int {
	if len(r.tokens) == 0 {
		return 0
	}
	return (len(r.tokens) - 1) / 2
}

// Departure returns the leading station, or "" for an empty route.
func (r *Route) Departure() string {
	if len(r.tokens) == 0 {
		return ""
	}
	return r.tokens[0]
}

// Arrival returns the final station, or "" for an empty route.
func (r *Route) Arrival() string {
	if len(r.tokens) == 0 {
		return ""
	}
	return r.tokens[len(r.tokens)-1]
}
