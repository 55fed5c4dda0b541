// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Error is a non-2xx reply from the tracker.
type Error struct {
	StatusCode int

	// Message is the first error message in the reply body, or the
	// HTTP status text when the body carries none.
	Message string
}

func (err *Error) Error() string {
	return fmt.Sprintf("tracker: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsUnauthorized reports whether err is a 401 or 403 reply, which
// means the configured credentials need attention.
func IsUnauthorized(err error) bool {
	var apiError *Error
	return errors.As(err, &apiError) &&
		(apiError.StatusCode == http.StatusUnauthorized || apiError.StatusCode == http.StatusForbidden)
}

// IsNotFound reports whether err is a 404 reply, as for an unknown
// issue key.
func IsNotFound(err error) bool {
	var apiError *Error
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// parseError builds an Error from a reply body of the form
// {"errorMessages": [...], "errors": {"field": "message"}}.
func parseError(statusCode int, body string) *Error {
	var parsed struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	message := ""
	if json.Unmarshal([]byte(body), &parsed) == nil {
		switch {
		case len(parsed.ErrorMessages) > 0:
			message = parsed.ErrorMessages[0]
		case len(parsed.Errors) > 0:
			fields := make([]string, 0, len(parsed.Errors))
			for field := range parsed.Errors {
				fields = append(fields, field)
			}
			slices.Sort(fields)
			parts := make([]string, 0, len(fields))
			for _, field := range fields {
				parts = append(parts, field+": "+parsed.Errors[field])
			}
			message = strings.Join(parts, "; ")
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &Error{StatusCode: statusCode, Message: message}
}
