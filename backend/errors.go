// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"errors"
	"fmt"
)

// Error represents a structured error response from the backend.
// Callers can use errors.As to extract the structured information:
//
//	var apiErr *backend.Error
//	if errors.As(err, &apiErr) {
//	    if apiErr.StatusCode == http.StatusNotFound { ... }
//	}
type Error struct {
	// Code is the backend's machine-readable error code, when present
	// (e.g., "VALIDATION", "NOT_FOUND"). May be empty — older backend
	// builds return only a message.
	Code string `json:"code"`
	// Message is the human-readable error description from the server.
	Message string `json:"message"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("backend: (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsStatus checks whether err is a *Error with the given HTTP status.
func IsStatus(err error, statusCode int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusCode
	}
	return false
}
