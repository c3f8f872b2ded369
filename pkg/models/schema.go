package models

import (
	"encoding/json"
	"fmt"
)

// ColumnType enumerates the value types a target column may declare.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInt      ColumnType = "int"
	TypeFloat    ColumnType = "float"
	TypeBool     ColumnType = "bool"
	TypeDatetime ColumnType = "datetime"
	TypeDate     ColumnType = "date"
)

// Column describes one target table column and how to derive it
// from the source CSV.
type Column struct {
	Name     string     `json:"name"`
	Source   string     `json:"source,omitempty"` // CSV header, when it differs from Name
	Type     ColumnType `json:"type"`
	Format   string     `json:"format,omitempty"` // Go reference layout for datetime/date
	Required bool       `json:"required,omitempty"`
}

// SourceHeader returns the CSV header this column is read from.
func (c Column) SourceHeader() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// Schema is the root of the JSON schema file. Column order defines the
// target row tuple order; Keys name the columns used for upsert conflicts.
type Schema struct {
	Table   string   `json:"table,omitempty"`
	Columns []Column `json:"columns"`
	Keys    []string `json:"keys,omitempty"`
}

// LoadSchema parses and validates a schema document.
func LoadSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks structural invariants: at least one column, unique
// column names, known types, and keys that refer to declared columns.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema must declare at least one column")
	}

	seen := make(map[string]bool, len(s.Columns))
	for i, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("column at index %d is missing name", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate column name: %s", col.Name)
		}
		seen[col.Name] = true

		switch col.Type {
		case TypeString, TypeInt, TypeFloat, TypeBool, TypeDatetime, TypeDate:
		case "":
			return fmt.Errorf("column '%s' is missing type", col.Name)
		default:
			return fmt.Errorf("column '%s' has unknown type: %s", col.Name, col.Type)
		}
	}

	for _, key := range s.Keys {
		if !seen[key] {
			return fmt.Errorf("key column '%s' is not declared in columns", key)
		}
	}
	return nil
}

// ColumnNames returns the target column names in schema order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// KeyIndexes returns the positions of the key columns within the row
// tuple, in the order the keys are declared.
func (s *Schema) KeyIndexes() []int {
	pos := make(map[string]int, len(s.Columns))
	for i, col := range s.Columns {
		pos[col.Name] = i
	}
	idx := make([]int, 0, len(s.Keys))
	for _, key := range s.Keys {
		idx = append(idx, pos[key])
	}
	return idx
}
