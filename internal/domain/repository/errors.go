package repository

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateRecord is returned when a record with the same identity already exists.
	ErrDuplicateRecord = errors.New("duplicate record")
	// ErrStaleState is returned by a conditional update when the stored status has moved on.
	ErrStaleState = errors.New("record was modified concurrently")
	// ErrNoJobDue is returned by Claim when no ticket is due.
	ErrNoJobDue = errors.New("no job due")
	// ErrLeaseLost is returned when a worker acts on a ticket it no longer holds.
	ErrLeaseLost = errors.New("job lease lost")
)
