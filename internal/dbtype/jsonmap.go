// Package dbtype holds small GORM column adapters shared by the store
// packages. None of the example pack's retrieved dependencies include
// gorm.io/datatypes, so JSON-valued columns (evaluator config, expected
// output, case context, execution summary) round-trip through this hand-rolled Scanner/Valuer
// pair instead.
package dbtype

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a map[string]any that stores as a single JSON(B) column.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("dbtype: marshal JSONMap: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("dbtype: unsupported Scan type %T for JSONMap", value)
	}

	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}

	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("dbtype: unmarshal JSONMap: %w", err)
	}
	*m = out
	return nil
}

// GormDataType tells GORM's migrator to use a JSON-capable column type.
func (JSONMap) GormDataType() string {
	return "jsonb"
}
