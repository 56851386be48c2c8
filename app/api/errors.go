package api

import (
	"errors"
	"log/slog"

	"studyrag/model"
	"studyrag/types"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	var apiError Error
	var fiberErr *fiber.Error
	var svcErr *model.ServiceError
	switch {
	case errors.Is(err, types.ErrAccessDenied):
		apiError = NewError(fiber.StatusForbidden, "access denied")
	case errors.Is(err, types.ErrNotFound):
		apiError = NewError(fiber.StatusNotFound, "resource not found")
	case errors.Is(err, types.ErrIngestionInProgress):
		apiError = NewError(fiber.StatusConflict, "ingestion already in progress")
	case errors.As(err, &svcErr):
		apiError = NewError(fiber.StatusBadGateway, svcErr.Service+" service unavailable")
	case errors.As(err, &fiberErr):
		apiError = NewError(fiberErr.Code, fiberErr.Message)
	default:
		apiError = NewError(fiber.StatusInternalServerError, "internal server error")
	}

	slog.Error("request failed", "path", c.Path(), "code", apiError.Code, "error", err)
	return c.Status(apiError.Code).JSON(apiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}
