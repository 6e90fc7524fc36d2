package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Queryable is the querying interface common to both an open sqlx
// database and an in-flight sqlx transaction. Stores accept this type
// so that callers decide the transactional scope of each operation.
type Queryable interface {
	Exec(query string, args ...any) (sql.Result, error)
	NamedExec(query string, arg any) (sql.Result, error)
	Get(dest any, query string, args ...any) error
	Select(dest any, query string, args ...any) error
	Queryx(query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
}

// JsonColumn wraps a destination type such that it can be scanned from
// a JSON/JSONB column (typically the output of a JSONB_AGG or
// JSONB_OBJECT_AGG aggregation).
type JsonColumn[T any] struct {
	val *T
}

func (j *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		j.val = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T in to JsonColumn", src)
	}

	j.val = new(T)
	return json.Unmarshal(raw, j.val)
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	if j.val == nil {
		return nil, nil
	}

	return json.Marshal(*j.val)
}

// Get returns the scanned value, or nil if the column was NULL (or has
// not been scanned).
func (j *JsonColumn[T]) Get() *T {
	return j.val
}
