package utils

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

func TestErrorResponse_NoMutation(t *testing.T) {
	app := fiber.New()

	assert.Equal(t, fiber.StatusInternalServerError, ErrInternalServer.Status)

	app.Get("/error", func(c *fiber.Ctx) error {
		return ErrorResponse(c, ErrInternalServer, fiber.StatusTeapot)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/error", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.Equal(t, fiber.StatusInternalServerError, ErrInternalServer.Status, "shared error must not be mutated")

	body, _ := io.ReadAll(resp.Body)
	var result errorBody
	require.NoError(t, json.Unmarshal(body, &result))
	assert.False(t, result.Success)
	assert.Equal(t, ErrInternalServer.Code, result.Error.Code)
}

func TestErrorResponse_DefaultStatus(t *testing.T) {
	app := fiber.New()

	app.Get("/missing", func(c *fiber.Ctx) error {
		return ErrorResponse(c, ErrNotFound)
	})
	app.Get("/zero", func(c *fiber.Ctx) error {
		return ErrorResponse(c, &APIError{Code: "X", Message: "x"})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/zero", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestAPIError_WithDetails(t *testing.T) {
	withDetails := ErrBadRequest.WithDetails(map[string]string{"email": "required"})

	assert.Nil(t, ErrBadRequest.Details)
	assert.Equal(t, ErrBadRequest.Code, withDetails.Code)
	assert.NotNil(t, withDetails.Details)
}

func TestSuccessResponse(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c *fiber.Ctx) error {
		return SuccessResponse(c, fiber.Map{"id": "1"}, "created", fiber.StatusCreated)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
		Message string            `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "1", body.Data["id"])
	assert.Equal(t, "created", body.Message)
}
