// Package repository defines error types that are reused across multiple
// repositories. These sentinel values let higher layers such as handlers
// distinguish failure scenarios: ErrNotFound indicates a missing row and
// usually maps to 404, while ErrEmailExists signals a unique-key conflict
// on registration and maps to 409.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")
