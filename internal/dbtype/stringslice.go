package dbtype

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSlice is a []string stored as a JSON array column, used for the
// evaluator_kinds list of a test case.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("dbtype: marshal StringSlice: %w", err)
	}
	return string(b), nil
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("dbtype: unsupported Scan type %T for StringSlice", value)
	}

	if len(raw) == 0 {
		*s = StringSlice{}
		return nil
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("dbtype: unmarshal StringSlice: %w", err)
	}
	*s = out
	return nil
}

func (StringSlice) GormDataType() string {
	return "jsonb"
}
