package common

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable marks transport failures and malformed payloads on read calls.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrOrderRejected marks a non-success answer to an order submit or cancel.
	ErrOrderRejected = errors.New("order rejected")
)

// APIError is a non-success envelope returned by the exchange.
type APIError struct {
	Op      string
	Code    int64
	Message string
	Kind    error // ErrDataUnavailable or ErrOrderRejected
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: code=%d msg=%s", e.Op, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}
