package serverutils

import (
	"errors"

	"coi-notes-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware renders errors returned by handlers that have not
// started streaming yet.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		}

		appErr := apperror.As(err)
		status := apperror.HTTPStatus(appErr.Code)
		message := appErr.Message
		if status == fiber.StatusInternalServerError {
			message = "Internal server error"
		}
		return ctx.Status(status).JSON(ErrorResponseWithType(status, string(appErr.Code), message))
	}
}
