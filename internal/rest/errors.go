package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeNotFound is the business code the backend uses for missing resources.
const CodeNotFound = 40001

// APIError is returned when the backend answers with a non-success code,
// or with an HTTP error status and no readable envelope.
type APIError struct {
	Code    int
	Message string
	Status  int
}

func (e *APIError) Error() string {
	if e.Status != 0 && e.Status != e.Code {
		return fmt.Sprintf("api error %d (http %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNotFound || apiErr.Status == http.StatusNotFound
}

// IsUnauthorized reports whether the backend rejected the bearer token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusUnauthorized || apiErr.Code == http.StatusUnauthorized)
}
