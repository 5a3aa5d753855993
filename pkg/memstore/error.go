package memstore

import "errors"

// ErrNotFound is returned when no object matches an equality fetch.
type ErrNotFound struct {
	Collection string
	Field      string
	Value      string
}

func (e ErrNotFound) Error() string {
	if e.Collection == "" {
		return "object not found"
	}

	return "object not found: " + e.Collection + "." + e.Field + "=" + e.Value
}

// ErrUnavailable indicates the store is unreachable. Memory is best-effort
// context, not transactional state, so callers treat this as an empty result
// rather than a fatal error.
var ErrUnavailable = errors.New("memory store unavailable")

// ErrSchemaMismatch indicates a collection or field is absent in the store.
// Logged and treated as an empty result by callers.
var ErrSchemaMismatch = errors.New("memory store schema mismatch")

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
