// Package httpkit provides HTTP response utilities and shared middleware.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"net/http"

	"adecis_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// OK sends a 200 OK response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// HandleError maps domain errors to HTTP responses.
// Typed *apperr.Error values use their Kind for the status code; when Details
// is a map it is merged into the response body alongside "error" so callers
// receive flat payloads such as {error, upgrade_required, usage}.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if domainErr, ok := err.(*apperr.Error); ok {
		if fields, ok := domainErr.Details.(map[string]interface{}); ok {
			body := gin.H{"error": domainErr.Message}
			for k, v := range fields {
				body[k] = v
			}
			c.JSON(domainErr.HTTPStatus(), body)
			return true
		}
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:   domainErr.Message,
			Details: domainErr.Details,
		})
		return true
	}

	// Fallback for non-typed errors
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	return true
}
