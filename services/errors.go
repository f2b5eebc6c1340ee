package services

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error taxonomy for the engine. Request-path failures wrap one of these so
// handlers can map them to status codes; background sweeps log and contain
// them per item instead.
var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("scheduling conflict")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrExternalService = errors.New("judge service unavailable")
	ErrInvariant       = errors.New("invariant violation")
)

// HTTPStatusFromError maps engine errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrExternalService):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes an engine error as a JSON response.
func respondError(c *fiber.Ctx, err error) error {
	return c.Status(HTTPStatusFromError(err)).JSON(fiber.Map{"error": err.Error()})
}
