package repo

import (
	"database/sql"
	"errors"
)

// Repo wraps the injected database handle. All methods operate on a single
// document-style record at a time; no cross-row transactions are exposed
// beyond what callers open themselves.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
