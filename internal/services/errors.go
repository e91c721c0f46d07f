package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/isdelr/telemed-portal/internal/database"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("already exists")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError carries per-field messages for bad or missing input.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
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

// StoreError wraps a failed store operation. Its cause is for logs only.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Unavailable reports whether the store connection itself was lost.
func (e *StoreError) Unavailable() bool {
	return database.IsConnectionError(e.Err)
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
