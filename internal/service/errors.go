package service

import "errors"

// Operational errors. Handlers map these onto the response envelope; anything
// not wrapped here surfaces as an internal error.
var (
	ErrValidation   = errors.New("validation")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream")
)
