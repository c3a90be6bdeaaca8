package stt

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("stt: session not connected")
	ErrClosed       = errors.New("stt: session closed")
)

// ProviderError is an error message delivered by the provider over the
// stream itself, as opposed to a transport failure.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt provider error %s: %s", e.Code, e.Message)
}
