// Copyright 2025 ZeroXBridge
//
// Package database provides sentinel errors for journal operations.

package database

import "errors"

// Sentinel errors for journal operations
var (
	// ErrNotFound is returned when a requested entity is not found in the journal
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateCommitment is returned when an insert collides with an
	// existing commitment hash; commitments are globally unique
	ErrDuplicateCommitment = errors.New("duplicate commitment")

	// ErrProofJobNotFound is returned when a proof job record is not found
	ErrProofJobNotFound = errors.New("proof job not found")

	// ErrCursorNotFound is returned when no block cursor exists for a key
	ErrCursorNotFound = errors.New("block cursor not found")
)
