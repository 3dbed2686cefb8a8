package sqlite

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/verisite/fieldflow/internal/domain/flow"
)

// MapError converts sqlite driver errors into domain error kinds so
// callers can classify with errors.Is. Unique and primary key violations
// surface as ErrConflict; foreign key violations mean the referenced row
// is gone and surface as ErrNotFound.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", flow.ErrConflict, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", flow.ErrNotFound, err)
		}
	}

	return err
}

// IsUniqueViolation reports whether the error is a unique or primary key
// constraint violation
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
