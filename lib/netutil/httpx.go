// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small network helpers shared by the poker
// binaries.
//
// ReadResponse, DecodeResponse and ErrorBody bound every HTTP
// response read at MaxResponseSize. They are meant for JSON API
// replies such as the issue tracker's; nothing in this module streams
// large bodies over HTTP.
//
// IsExpectedCloseError classifies errors from a peer going away, so
// socket handlers can tell a closed client from a broken one.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response reads: 8 MB. A tracker
// search page of issues is a few kilobytes.
const MaxResponseSize int64 = 8 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body up to MaxResponseSize bytes
// and decodes it as JSON into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorBody returns as much of an error response body as can be
// read, for use in error messages. Read failures yield what was read.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}
