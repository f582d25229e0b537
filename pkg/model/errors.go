package model

import (
	"context"
	"errors"
)

var (
	// ErrMalformedPayload is returned when a channel payload cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingAction is returned when a dispatch message carries no action
	ErrMissingAction = errors.New("dispatch message has no action")
	// ErrInvalidAction is returned when an action has no string type
	ErrInvalidAction = errors.New("action must have a string type")
	// ErrUnknownTopic is returned for topics outside the bridge protocol
	ErrUnknownTopic = errors.New("unknown topic")
)

// IsCanceled returns true if the error is due to context cancellation or deadline exceeded.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
