// Package utils contains the error taxonomy and parallel work helpers shared by
// the reconstruction packages.
package utils

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfig is returned for malformed intrinsics, invalid strides and other bad parameters.
	ErrConfig = errors.New("invalid configuration")
	// ErrShape is returned when a depth grid's declared size disagrees with its data.
	ErrShape = errors.New("depth grid shape mismatch")
	// ErrInvalidInput is returned for empty or missing point clouds.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientCorrespondences is returned when registration is under-determined.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")
	// ErrNonConvergence marks a registration that ran out of iterations. It is
	// a diagnostic and is never returned as a failure by Align.
	ErrNonConvergence = errors.New("registration did not converge")
)

// NewConfigError wraps ErrConfig with a formatted message.
func NewConfigError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

// NewShapeError wraps ErrShape with a formatted message.
func NewShapeError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShape, format, args...)
}

// NewInvalidInputError wraps ErrInvalidInput with a formatted message.
func NewInvalidInputError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// NewInsufficientCorrespondencesError is used when fewer than the required
// number of point pairs survive outlier rejection.
func NewInsufficientCorrespondencesError(iteration, got, need int) error {
	return errors.Wrapf(ErrInsufficientCorrespondences,
		"iteration %d kept %d correspondences, need at least %d", iteration, got, need)
}

// NewNonConvergenceError describes a registration that stopped at its iteration budget.
func NewNonConvergenceError(iterations int, meanError float64) error {
	return errors.Wrapf(ErrNonConvergence, "stopped after %d iterations with mean squared error %g", iterations, meanError)
}

// NewConfigValidationError is used when a config field fails validation.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(ErrConfig, "error validating %q: %s", path, err)
}

// NewConfigValidationFieldRequiredError is used when a required config field is missing.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return NewConfigValidationError(path, errors.Errorf("%q is required", field))
}
