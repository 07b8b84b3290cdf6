package offline

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Manifest is the ordered, de-duplicated list of paths precached at install.
type Manifest struct {
	paths []string
	index map[string]struct{}
}

// NewManifest merges path groups, keeping first occurrences in order. Blank entries
// are dropped and every path is made absolute.
func NewManifest(groups ...[]string) *Manifest {
	m := &Manifest{index: make(map[string]struct{})}
	for _, g := range groups {
		m.add(g)
	}
	return m
}

func (m *Manifest) add(paths []string) {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if _, ok := m.index[p]; ok {
			continue
		}
		m.index[p] = struct{}{}
		m.paths = append(m.paths, p)
	}
}

// LoadManifest reads a TOML file with `build` and `static` path arrays.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var raw struct {
		Build  []string `toml:"build"`
		Static []string `toml:"static"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	return NewManifest(raw.Build, raw.Static), nil
}

// With returns a copy of m extended with extra paths.
func (m *Manifest) With(extra ...string) *Manifest {
	return NewManifest(m.Paths(), extra)
}

// Paths returns the manifest paths in order.
func (m *Manifest) Paths() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

// Contains reports whether path is precached.
func (m *Manifest) Contains(path string) bool {
	if m == nil {
		return false
	}
	_, ok := m.index[path]
	return ok
}

// Len returns the number of paths.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.paths)
}
