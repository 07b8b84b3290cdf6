package codec

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/farert/farert-companion/internal/engine"
)

// ErrNilRoute is returned when Encode is given no route.
var ErrNilRoute = errors.New("route is nil")

// Codec converts routes to compact URL-safe tokens and back.
type Codec struct {
	newRoute engine.Factory
	logger   logrus.FieldLogger
}

// New creates a codec that builds routes with newRoute.
func New(newRoute engine.Factory, logger logrus.FieldLogger) *Codec {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Codec{
		newRoute: newRoute,
		logger:   logger.WithField("component", "codec"),
	}
}

// Encode returns the token for route. A negative tailSegmentCount encodes the whole
// route; otherwise only the leading station and the first tailSegmentCount segments.
func (c *Codec) Encode(route engine.Route, tailSegmentCount int) (token string, err error) {
	if route == nil {
		return "", ErrNilRoute
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("Route engine panicked while encoding route")
			token, err = "", fmt.Errorf("encode route: %v", r)
		}
	}()

	script := route.Script()
	if tailSegmentCount >= 0 {
		partial := c.newRoute()
		partial.AssignTail(route, tailSegmentCount)
		script = partial.Script()
	}

	return CompressToURIComponent(script)
}

// Decode rebuilds the route carried by token. It returns nil for anything that does
// not decode into a route the engine accepts.
func (c *Codec) Decode(token string) (route engine.Route) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("Route engine panicked while decoding token")
			route = nil
		}
	}()

	script, err := DecompressFromURIComponent(token)
	if err != nil || script == "" {
		c.logger.WithField("token_length", len(token)).Warn("Failed to decompress route token")
		return nil
	}

	candidate := c.newRoute()
	status := candidate.Build(script)
	if !status.OK() {
		c.logger.WithFields(logrus.Fields{
			"status": status.String(),
		}).Warn("Failed to build route from token")
		return nil
	}

	return candidate
}
