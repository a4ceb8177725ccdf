package models

import "encoding/json"

// ColumnMapping maps one source column onto an entity field.
// TargetField is empty for unmapped columns. Confidence is a 0..100
// similarity score used only for auto-accept thresholding; Suggested names
// the best-scoring field of a column left unmapped.
type ColumnMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetField  string `json:"targetField"`
	Confidence   int    `json:"confidence"`
	Required     bool   `json:"required"`
	Suggested    string `json:"suggested,omitempty"`
}

// Mapped reports whether the column has a target field.
func (m ColumnMapping) Mapped() bool { return m.TargetField != "" }

// MappingFile is the on-disk form of a finalized mapping.
type MappingFile struct {
	Entity   EntityType      `json:"entity"`
	Mappings []ColumnMapping `json:"mappings"`
}

// RawRow is one source record: header -> raw cell value.
// Rows are kept in a slice; the 1-based position is the row number in messages.
type RawRow map[string]string

// MappedFields returns targetField -> sourceColumn for every mapped column.
func MappedFields(mappings []ColumnMapping) map[string]string {
	out := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if m.Mapped() {
			out[m.TargetField] = m.SourceColumn
		}
	}
	return out
}

func LoadMapping(data []byte) (*MappingFile, error) {
	var m MappingFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
