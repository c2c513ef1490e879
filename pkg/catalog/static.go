package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

//go:embed data/managed.json data/custom.json
var bundled embed.FS

// Static is the bundled, read-only engine schema catalog. Managed and custom
// records are kept apart because lookups never cross the two.
type Static struct {
	managed []models.EngineSchema
	custom  []models.EngineSchema
}

// NewStatic builds a catalog from in-memory records.
func NewStatic(managed, custom []models.EngineSchema) *Static {
	return &Static{managed: managed, custom: custom}
}

// LoadStatic decodes the catalog files compiled into the binary.
func LoadStatic() (*Static, error) {
	managed, err := loadRecords("data/managed.json")
	if err != nil {
		return nil, err
	}
	custom, err := loadRecords("data/custom.json")
	if err != nil {
		return nil, err
	}
	return NewStatic(managed, custom), nil
}

func loadRecords(path string) ([]models.EngineSchema, error) {
	data, err := bundled.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundled catalog %s: %w", path, err)
	}
	var records []models.EngineSchema
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode bundled catalog %s: %w", path, err)
	}
	return records, nil
}

// FindManaged returns the first managed record named name.
func (s *Static) FindManaged(name string) (*models.EngineSchema, bool) {
	for i := range s.managed {
		if s.managed[i].Name == name {
			return &s.managed[i], true
		}
	}
	return nil, false
}

// FindCustomDocument returns the first custom record for a document-store
// collection.
func (s *Static) FindCustomDocument(source models.QuerySource, identifier string) (*models.EngineSchema, bool) {
	for i := range s.custom {
		rec := &s.custom[i]
		if rec.QuerySource == source && rec.QuerySourceIdentifier == identifier {
			return rec, true
		}
	}
	return nil, false
}

// FindCustomSQL returns every custom SQL record whose identifier is one of
// tables, in catalog order.
func (s *Static) FindCustomSQL(tables []string) []*models.EngineSchema {
	var out []*models.EngineSchema
	for i := range s.custom {
		rec := &s.custom[i]
		if rec.QuerySource == models.QuerySourceSQL && slices.Contains(tables, rec.QuerySourceIdentifier) {
			out = append(out, rec)
		}
	}
	return out
}
