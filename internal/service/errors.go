package service

import "errors"

// Error kinds returned by the service layer. Handlers map them to HTTP
// statuses with errors.Is; everything else is a 500.
var (
	ErrValidation     = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("operation not allowed in current state")
	ErrUnauthorized   = errors.New("caller is not permitted")
	ErrConflict       = errors.New("conflicting update")
	ErrEscrowFailure  = errors.New("escrow operation failed")
	ErrAlreadySettled = errors.New("dispute already settled")
)
