package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrCacheMiss = errors.New("cache miss")

const (
	NO_PAGINATION = 0
)

// Metadata is a free-form json object stored in a jsonb column.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface.
func (m *Metadata) Scan(src interface{}) error {
	switch src := src.(type) {
	case []byte:
		return m.scanBytes(src)
	case string:
		return m.scanBytes([]byte(src))
	case nil:
		*m = Metadata{}
		return nil
	}

	return fmt.Errorf("pq: cannot convert %T to Metadata", src)
}

func (m *Metadata) scanBytes(src []byte) error {
	if len(src) == 0 {
		*m = Metadata{}
		return nil
	}
	res := Metadata{}
	if err := json.Unmarshal(src, &res); err != nil {
		return err
	}
	*m = res
	return nil
}
