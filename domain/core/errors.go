package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrRunNotFound    = fmt.Errorf("%w: run", ErrNotFound)
	ErrTargetNotFound = fmt.Errorf("%w: target", ErrNotFound)

	// Configuration errors
	ErrInvalidConfig    = errors.New("invalid detection configuration")
	ErrDropTooLarge     = fmt.Errorf("%w: number_measurements must exceed 2*drop_size", ErrInvalidConfig)
	ErrNoPercentiles    = fmt.Errorf("%w: number_percentiles must be positive", ErrInvalidConfig)
	ErrNoChunk          = fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	ErrRandomnessFailed = errors.New("randomness source failed")

	// Resource errors
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrOperandsExhausted = fmt.Errorf("%w: operand file shorter than batch", ErrResourceExhausted)

	// Measurement errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrWraparound       = errors.New("cycle counter wrapped around")
	ErrNoSamples        = errors.New("no samples")

	// Device errors
	ErrDeviceFailure = errors.New("device under test failed")
	ErrSelfCheck     = fmt.Errorf("%w: result self-check mismatch", ErrDeviceFailure)
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}

func NewDeviceError(target string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDeviceFailure, target, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrRandomnessFailed)
}

func IsResourceError(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDeviceFailure)
}
