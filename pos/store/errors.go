package store

import "fmt"

// DuplicateError mirrors a UNIQUE constraint violation.
type DuplicateError struct {
	Table string
	Key   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: duplicate key %q", e.Table, e.Key)
}

// ConstraintError mirrors a CHECK constraint violation.
type ConstraintError struct {
	Table string
	Rule  string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: check constraint failed: %s", e.Table, e.Rule)
}
