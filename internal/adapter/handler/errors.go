package handler

import (
	"errors"
	"net/http"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/validation"
)

// failure is the transport-neutral view of a service error.
type failure struct {
	status  int
	code    string
	message string
	fields  []string
}

func classify(err error) failure {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return failure{http.StatusBadRequest, "invalid_argument", "invalid request", verr.Fields}
	case errors.Is(err, domain.ErrNotFound):
		return failure{status: http.StatusNotFound, code: "not_found", message: "not found"}
	case errors.Is(err, domain.ErrSoldOut):
		return failure{status: http.StatusGone, code: "sold_out", message: "sold out"}
	case errors.Is(err, domain.ErrNotAvailable):
		return failure{status: http.StatusConflict, code: "not_available", message: "listing is not available for sale"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return failure{status: http.StatusConflict, code: "invalid_transition", message: "invalid sale status transition"}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return failure{status: http.StatusConflict, code: "duplicate_request", message: "duplicate request"}
	case errors.Is(err, domain.ErrSlugTaken):
		return failure{status: http.StatusConflict, code: "slug_taken", message: "slug already in use"}
	case errors.Is(err, domain.ErrConflict):
		return failure{status: http.StatusConflict, code: "conflict", message: "resource was modified concurrently"}
	case errors.Is(err, domain.ErrInvalidCapacity):
		return failure{status: http.StatusUnprocessableEntity, code: "invalid_capacity", message: "total slots below seats already held"}
	case errors.Is(err, domain.ErrUnauthorized):
		return failure{status: http.StatusUnauthorized, code: "unauthorized", message: "unauthorized"}
	case errors.Is(err, domain.ErrForbidden):
		return failure{status: http.StatusForbidden, code: "forbidden", message: "forbidden"}
	case errors.Is(err, domain.ErrPaymentFailed):
		return failure{status: http.StatusBadGateway, code: "payment_failed", message: "payment provider unavailable"}
	}
	return failure{status: http.StatusInternalServerError, code: "internal", message: "internal error"}
}
