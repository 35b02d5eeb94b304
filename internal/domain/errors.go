// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity is in the wrong state for the requested
// transition, or another task already holds the single in-progress slot.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates invalid or missing input. Nothing was changed.
var ErrValidation = errors.New("validation failed")

// ErrTerminal indicates the task already reached completed or failed.
var ErrTerminal = errors.New("task already terminal")

// ErrDependency indicates at least one dependency is not completed.
var ErrDependency = errors.New("dependencies not completed")

// ErrCapacity indicates the queue is full and nothing could be evicted.
var ErrCapacity = errors.New("capacity exceeded")
