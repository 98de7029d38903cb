package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/bridge"
	"github.com/papercomputeco/cadence/pkg/coordinator"
	"github.com/papercomputeco/cadence/pkg/lease"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes. Store and AI outages
// are the only failures a learner should see, as 503.
func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrInvalidOutcome),
		errors.Is(err, bridge.ErrInvalidSignal):
		return fiber.StatusBadRequest
	case errors.Is(err, progress.ErrUnknownItem),
		errors.Is(err, coordinator.ErrNoSession):
		return fiber.StatusNotFound
	case errors.Is(err, lease.ErrHeld),
		errors.Is(err, coordinator.ErrSessionClosed):
		return fiber.StatusConflict
	case errors.Is(err, storage.ErrStoreUnavailable),
		errors.Is(err, ai.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}
