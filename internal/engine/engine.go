// Package engine defines the narrow call surface the companion needs from the
// external fare engine. Route objects are engine-backed and mutated in place; the
// companion only builds them from canonical text, reads them back and copies a
// truncated prefix.
package engine

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Route is one engine-backed route object.
type Route interface {
	// Build replaces the route with the one described by a canonical script.
	Build(script string) Status
	// Script returns the canonical comma-separated station/line form.
	Script() string
	// AssignTail makes this route a copy of src truncated to count segments.
	// A negative count copies src whole.
	AssignTail(src Route, count int)
	SegmentCount() int
	Departure() string
	Arrival() string
}

// Factory constructs an empty route object.
type Factory func() Route

// Status is the raw outcome an engine reports for Build. Engines answer with a bare
// numeric code ("0") or with an object embedding it ({"rc":0}).
type Status []byte

// Code returns a bare numeric status.
func Code(n int) Status {
	return Status(strconv.Itoa(n))
}

// OK reports whether the status carries the neutral success code. An engine that
// reports nothing (an empty or null status) has succeeded.
func (s Status) OK() bool {
	trimmed := bytes.TrimSpace(s)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "0", "null":
		return true
	}
	if trimmed[0] != '{' {
		return false
	}

	var structured struct {
		RC json.RawMessage `json:"rc"`
	}
	if err := json.Unmarshal(trimmed, &structured); err != nil {
		return false
	}
	rc, err := strconv.ParseFloat(strings.TrimSpace(string(structured.RC)), 64)
	if err != nil {
		return false
	}
	return rc == 0
}

// String renders the status for logs.
func (s Status) String() string {
	if len(s) == 0 {
		return "<empty>"
	}
	return string(s)
}

// Tokens splits a canonical script into its trimmed station/line tokens.
func Tokens(script string) []string {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	fields := strings.Split(script, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}
