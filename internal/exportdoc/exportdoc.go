// Package exportdoc reads and writes the saved-routes export file.
package exportdoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farert/farert-companion/internal/models"
)

// CurrentVersion is written into every export. Imports are accepted when the major
// component matches.
const CurrentVersion = "1.0"

// DefaultFilename is the suggested name for downloaded exports.
const DefaultFilename = "farert-routes.json"

var (
	ErrNotJSON         = errors.New("failed to parse JSON")
	ErrMissingVersion  = errors.New("export has no version information")
	ErrMalformedRoutes = errors.New("export route data is malformed")
)

// VersionError reports an export written by an incompatible version.
type VersionError struct {
	Got  string
	Want string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("incompatible export version (file: %s, current: %s)", e.Got, e.Want)
}

// Export renders routes as an indented export document stamped with now.
func Export(routes []string, now time.Time) ([]byte, error) {
	if routes == nil {
		routes = []string{}
	}
	exportedAt := now.UTC()
	doc := models.ExportDocument{
		Version:    CurrentVersion,
		Routes:     routes,
		ExportedAt: &exportedAt,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return data, nil
}

// Import validates an export document and returns its routes.
func Import(data []byte) ([]string, error) {
	var raw struct {
		Version json.RawMessage `json:"version"`
		Routes  json.RawMessage `json:"routes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	var version string
	if err := json.Unmarshal(raw.Version, &version); err != nil || version == "" {
		return nil, ErrMissingVersion
	}

	if major(version) != major(CurrentVersion) {
		return nil, &VersionError{Got: version, Want: CurrentVersion}
	}

	trimmed := bytes.TrimSpace(raw.Routes)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrMalformedRoutes
	}
	var routes []string
	if err := json.Unmarshal(trimmed, &routes); err != nil {
		return nil, ErrMalformedRoutes
	}
	if routes == nil {
		routes = []string{}
	}
	return routes, nil
}

func major(version string) string {
	major, _, _ := strings.Cut(version, ".")
	return major
}
