// Package apperr defines sentinel errors shared across the application.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrIndexShape        = errors.New("index shape invalid")
	ErrOutputWrite       = errors.New("output write failed")
	ErrFileTooLarge      = errors.New("file too large")
	ErrFolderTooLarge    = errors.New("folder too large")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrIndexNotLoaded    = errors.New("index not loaded")
)
