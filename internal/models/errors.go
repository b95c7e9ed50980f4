package models

import "errors"

// Error kinds shared by the store, the lobby manager and the HTTP layer.
// Specific failures wrap one of these with fmt.Errorf("%w: ...").
var (
	ErrNotFound     = errors.New("lobby not found")
	ErrGone         = errors.New("lobby is no longer active")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)
