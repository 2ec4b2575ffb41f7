package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version        int               `toml:"version"`
	UpdatedAt      string            `toml:"updated_at,omitempty"`
	Tables         []tableSchema     `toml:"tables"`
	SearchCriteria []criterionSchema `toml:"search_criteria,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported catalog schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type tableSchema struct {
	Name       string `toml:"name"`
	CheckboxID string `toml:"checkbox_id"`
	RealName   string `toml:"real_name,omitempty"`
}

type criterionSchema struct {
	Name       string `toml:"name"`
	CheckboxID string `toml:"checkbox_id"`
}
