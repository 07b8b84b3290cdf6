package script

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadCatalog reads a TOML catalog file:
//
//	stations = ["東京", "品川"]
//	lines    = ["東海道線"]
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var raw struct {
		Stations []string `toml:"stations"`
		Lines    []string `toml:"lines"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	return NewCatalog(raw.Stations, raw.Lines), nil
}
