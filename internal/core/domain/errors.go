package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrSoldOut           = errors.New("sold out")
	ErrNotAvailable      = errors.New("listing is not available for sale")
	ErrInvalidTransition = errors.New("invalid sale status transition")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInvalidCapacity   = errors.New("total slots below seats already held")
	ErrSlugTaken         = errors.New("slug already in use")
	ErrPaymentFailed     = errors.New("payment provider unavailable")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)
