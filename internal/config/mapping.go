package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BartekS5/importer/pkg/models"
)

// LoadMapping reads a finalized mapping file written by SaveMapping.
func LoadMapping(filePath string) (*models.MappingFile, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file '%s': %w", filePath, err)
	}
	m, err := models.LoadMapping(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
	}
	e, err := models.ParseEntityType(string(m.Entity))
	if err != nil {
		return nil, fmt.Errorf("mapping file '%s': %w", filePath, err)
	}
	m.Entity = e
	return m, nil
}

// SaveMapping writes a mapping as indented JSON.
func SaveMapping(filePath string, m *models.MappingFile) error {
	bytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	if err := os.WriteFile(filePath, append(bytes, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write mapping file '%s': %w", filePath, err)
	}
	return nil
}
