package store

import "errors"

// ErrNotFound marks lookups for entities that do not exist. Callers test
// with errors.Is.
var ErrNotFound = errors.New("not found")
