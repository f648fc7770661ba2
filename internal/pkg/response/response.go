// Package response provides JSON response helpers for API handlers.
package response

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/microauthx/microauthx/internal/pkg/errors"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more we can do here.
		return
	}
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Error writes an error response in the public failure shape:
// {"success":false,"code":...,"message":...}.
func Error(w http.ResponseWriter, err error) {
	apiErr := apierrors.AsAPIError(err)
	JSON(w, apiErr.StatusCode, map[string]any{
		"success": false,
		"code":    apiErr.Code,
		"message": apiErr.Message,
	})
}
