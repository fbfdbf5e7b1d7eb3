// Package common defines shared sentinel errors used across the fieldsync
// engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrStoreUnavailable = errors.New("local store unavailable")
	ErrStoreWriteFailed = errors.New("local store write failed")
	ErrNotFound         = errors.New("not found")

	// Sync-level errors.
	ErrPushFailed = errors.New("push failed")
	ErrOffline    = errors.New("offline")
	ErrTimeout    = errors.New("operation timed out")

	// Engine lifecycle errors.
	ErrNotReady    = errors.New("engine not ready")
	ErrSyncRunning = errors.New("sync pass already running")

	// Validation errors.
	ErrValidation = errors.New("validation failed")
)
