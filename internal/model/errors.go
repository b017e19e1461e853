package model

import "errors"

// Validation errors: synchronous, recoverable by the caller adjusting input.
var (
	ErrDuplicateName   = errors.New("duplicate name")
	ErrEmptyName       = errors.New("empty name")
	ErrProtectedEntity = errors.New("protected entity")
	ErrInvalidMove     = errors.New("invalid move")
	ErrNotFound        = errors.New("not found")
)

// Operational errors.
var (
	// ErrResolution marks an import-time identity resolution failure
	// (unresolved alias at finalize, inconsistent local/remote
	// classification). Recoverable by re-answering the offending phase.
	ErrResolution = errors.New("resolution error")

	// ErrState marks a programming-contract violation such as answering a
	// pipeline that is not suspended.
	ErrState = errors.New("invalid state")

	// ErrStore and ErrParse are fatal to the current operation; no partial
	// archive is left registered.
	ErrStore = errors.New("store error")
	ErrParse = errors.New("parse error")
)
