package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/seenimoa/geckomap/pkg/models"
)

// defaultMapping ships a curated mapping of the large-cap tickers so the
// service answers the common cases out of the box, before any refresh.
//
//go:embed default_mapping.json
var defaultMapping []byte

// LoadMapping reads a ticker mapping from path, falling back to the
// embedded default when path is empty.
func LoadMapping(path string) (*models.Mapping, error) {
	data := defaultMapping
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read mapping file: %w", err)
		}
		data = b
	}

	var m models.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if m.Len() == 0 {
		return nil, fmt.Errorf("mapping has no entries")
	}
	return &m, nil
}

// WriteMapping writes a mapping as indented JSON. Map keys marshal in
// sorted order, which keeps the file diffable across regenerations.
func WriteMapping(m *models.Mapping, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write mapping file: %w", err)
	}
	return nil
}
