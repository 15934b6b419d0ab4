package draft

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrNotSignedIn    = errors.New("you must be signed in to register a server")
	ErrClosed         = errors.New("draft is closed")
	ErrNotFound       = errors.New("draft not found")
)

// ValidationError carries per-field messages keyed by the JSON field name
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// fieldErrorer is implemented by remote errors that carry field messages
type fieldErrorer interface {
	FieldErrors() map[string]string
}
