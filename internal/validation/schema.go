// Package validation gates pipeline stages on the shape of their input tables.
package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rain-platform/internal/models"
)

// Column types used in schema files
const (
	TypeDate    = "DATE"
	TypeFloat   = "FLOAT"
	TypeInteger = "INTEGER"
)

// ColumnSpec declares one expected column
type ColumnSpec struct {
	Name string
	Type string
}

// Schema is the ordered expectation for a table
type Schema []ColumnSpec

// Names returns the column names in order
func (s Schema) Names() models.Schema {
	names := make(models.Schema, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// FlatSchema is date followed by 24 FLOAT sub-columns per variable
func FlatSchema(variables []string) Schema {
	s := Schema{{Name: models.DateColumn, Type: TypeDate}}
	for _, v := range variables {
		for h := 1; h <= models.HoursPerDay; h++ {
			s = append(s, ColumnSpec{Name: models.FlatColumnName(v, h), Type: TypeFloat})
		}
	}
	return s
}

// FeatureSchema is the predictor columns followed by the label
func FeatureSchema() Schema {
	s := make(Schema, 0, len(models.PredictorSchema)+1)
	for _, c := range models.PredictorSchema {
		s = append(s, ColumnSpec{Name: c, Type: TypeFloat})
	}
	return append(s, ColumnSpec{Name: models.LabelColumn, Type: TypeInteger})
}

type schemaFile struct {
	Columns yaml.Node `yaml:"columns"`
}

// LoadSchema reads a YAML file whose "columns" key maps column name to type.
// Mapping order is preserved.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}

	node := file.Columns
	if node.Kind != yaml.MappingNode {
		return nil, &models.ConfigurationError{Parameter: "columns", Value: path, Message: "must be a mapping of column name to type"}
	}

	schema := make(Schema, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		schema = append(schema, ColumnSpec{
			Name: node.Content[i].Value,
			Type: node.Content[i+1].Value,
		})
	}
	return schema, nil
}
