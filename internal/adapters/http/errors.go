package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`            // bad_request, validation_failed, not_found, internal_error, ...
	Message   string `json:"message"`         // Human-readable message
	Field     string `json:"field,omitempty"` // Offending input field for validation errors
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, 503, "unavailable", msg)
}

// errFromDomain maps usecase errors onto API errors.
func errFromDomain(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		reqID, _ := c.Locals("requestid").(string)
		return c.Status(422).JSON(APIError{
			Status:    422,
			Code:      "validation_failed",
			Message:   ve.Message,
			Field:     ve.Field,
			RequestID: reqID,
		})
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, err.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, "internal error")
}

// ErrorHandler renders errors that escape handlers (unknown routes, body
// limit, timeouts) in the APIError shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "error"
		switch fe.Code {
		case fiber.StatusNotFound:
			code = "not_found"
		case fiber.StatusRequestEntityTooLarge:
			code = "payload_too_large"
		case fiber.StatusRequestTimeout:
			code = "timeout"
		case fiber.StatusMethodNotAllowed:
			code = "method_not_allowed"
		case fiber.StatusBadRequest:
			code = "bad_request"
		}
		return newError(c, fe.Code, code, fe.Message)
	}
	return errFromDomain(c, err)
}
