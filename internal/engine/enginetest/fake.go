// Package enginetest provides an in-memory engine route for tests. It accepts any
// script and answers Build with a configurable status.
package enginetest

import (
	"strings"

	"github.com/farert/farert-companion/internal/engine"
)

// Route is a fake engine route.
type Route struct {
	script string
	// Status is returned by the next Build call; nil means success.
	Status engine.Status
	// Panic makes Build panic, for exercising recovery paths.
	Panic bool
}

var _ engine.Route = (*Route)(nil)

// New returns a route preloaded with script.
func New(script string) *Route {
	return &Route{script: script}
}

// Factory returns a factory of fresh fakes.
func Factory() engine.Factory {
	return func() engine.Route { return &Route{} }
}

// FactoryWithStatus returns a factory whose routes answer Build with status.
func FactoryWithStatus(status engine.Status) engine.Factory {
	return func() engine.Route { return &Route{Status: status} }
}

// PanickingFactory returns a factory whose routes panic on Build.
func PanickingFactory() engine.Factory {
	return func() engine.Route { return &Route{Panic: true} }
}

func (r *Route) Build(script string) engine.Status {
	if r.Panic {
		panic("enginetest: build exploded")
	}
	r.script = script
	if r.Status != nil {
		return r.Status
	}
	return engine.Code(0)
}

func (r *Route) Script() string { return r.script }

func (r *Route) AssignTail(src engine.Route, count int) {
	tokens := strings.Split(src.Script(), ",")
	if count < 0 || count >= (len(tokens)-1)/2 {
		r.script = src.Script()
		return
	}
	r.script = strings.Join(tokens[:1+2*count], ",")
}

func (r *Route) SegmentCount() int {
	if r.script == "" {
		return 0
	}
	return (len(strings.Split(r.script, ",")) - 1) / 2
}

func (r *Route) Departure() string {
	return strings.Split(r.script, ",")[0]
}

func (r *Route) Arrival() string {
	fields := strings.Split(r.script, ",")
	return fields[len(fields)-1]
}
