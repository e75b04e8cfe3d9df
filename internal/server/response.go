package server

import (
	"github.com/gofiber/fiber/v2"
)

// Response is the JSON error envelope. Code mirrors the HTTP status.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Default messages.
const (
	MsgBadRequest  = "bad request"
	MsgNotFound    = "not found"
	MsgServerError = "internal server error"
)

// Fail writes an error envelope whose code mirrors the HTTP status.
func Fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Response{
		Code:    status,
		Message: message,
	})
}

// BadRequest writes a 400 envelope.
func BadRequest(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgBadRequest
	}
	return Fail(c, fiber.StatusBadRequest, message)
}

// NotFound writes a 404 envelope.
func NotFound(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgNotFound
	}
	return Fail(c, fiber.StatusNotFound, message)
}

// ServerError writes a generic 500 envelope without internal details.
func ServerError(c *fiber.Ctx) error {
	return Fail(c, fiber.StatusInternalServerError, MsgServerError)
}
