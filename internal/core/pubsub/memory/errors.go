// Package memory provides an in-memory pubsub implementation for single-process setups.
package memory

import "errors"

var (
	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrPublisherClosed is returned when publishing on a closed publisher.
	ErrPublisherClosed = errors.New("publisher is closed")

	// ErrInvalidPattern is returned for an empty subscription pattern.
	ErrInvalidPattern = errors.New("subscription pattern cannot be empty")
)
