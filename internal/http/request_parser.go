// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, path parameters and the acting user header.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"budget/internal/core"
)

const (
	maxBodyBytes = 1 << 20
	// UserIDHeader carries the acting user id set by the authenticating proxy.
	UserIDHeader = "X-User-ID"
)

var errEmptyBody = errors.New("request body is empty")

// DecodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// PathYear parses the {year} path value.
func PathYear(r *http.Request) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(r.PathValue("year")))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidYear, r.PathValue("year"))
	}
	return year, core.ValidateYearMonth(year, 1)
}

// PathYearMonth parses and validates the {year} and {month} path values.
func PathYearMonth(r *http.Request) (int, int, error) {
	year, err := PathYear(r)
	if err != nil {
		return 0, 0, err
	}
	month, err := strconv.Atoi(strings.TrimSpace(r.PathValue("month")))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", core.ErrInvalidMonth, r.PathValue("month"))
	}
	return year, month, core.ValidateYearMonth(year, month)
}

// PathID returns the sanitized {id} path value.
func PathID(r *http.Request) string {
	return sanitizeInput(r.PathValue("id"))
}

// ActingUser returns the user id of the request or core.ErrUnauthenticated.
func ActingUser(r *http.Request) (string, error) {
	user := sanitizeInput(r.Header.Get(UserIDHeader))
	if user == "" {
		return "", core.ErrUnauthenticated
	}
	return user, nil
}
