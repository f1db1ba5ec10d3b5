// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package errors

import "errors"

// NotFound represents a resource-not-found error in the application.
type NotFound struct {
	base
}

// Error returns the error message for NotFound.
func (nf NotFound) Error() string {
	return nf.error()
}

// Unwrap returns the wrapped error, if any.
func (nf NotFound) Unwrap() error {
	return nf.err
}

// NewNotFound creates a new NotFound error with the provided message.
func NewNotFound(message string, err ...error) NotFound {
	return NotFound{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}

// Forbidden represents an access-control failure: the caller is known but
// lacks the required access level on the conversation group.
type Forbidden struct {
	base
}

// Error returns the error message for Forbidden.
func (f Forbidden) Error() string {
	return f.error()
}

// Unwrap returns the wrapped error, if any.
func (f Forbidden) Unwrap() error {
	return f.err
}

// NewForbidden creates a new Forbidden error with the provided message.
func NewForbidden(message string, err ...error) Forbidden {
	return Forbidden{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}

// Validation represents a validation error in the application.
type Validation struct {
	base
}

// Error returns the error message for Validation.
func (v Validation) Error() string {
	return v.error()
}

// Unwrap returns the wrapped error, if any.
func (v Validation) Unwrap() error {
	return v.err
}

// NewValidation creates a new Validation error with the provided message.
func NewValidation(message string, err ...error) Validation {
	return Validation{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}

// Conflict represents a unique-constraint conflict in the application.
// Code carries a machine-stable identifier (e.g. TRANSFER_ALREADY_PENDING)
// and ExistingID, when known, names the row that holds the constraint.
type Conflict struct {
	base
	Code       string
	ExistingID string
}

// Error returns the error message for Conflict.
func (c Conflict) Error() string {
	return c.error()
}

// Unwrap returns the wrapped error, if any.
func (c Conflict) Unwrap() error {
	return c.err
}

// NewConflict creates a new Conflict error with the provided message.
func NewConflict(message string, err ...error) Conflict {
	return Conflict{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}

// NewConflictWithCode creates a Conflict carrying a machine-stable code and
// the id of the existing row that caused the constraint violation.
func NewConflictWithCode(message, code, existingID string, err ...error) Conflict {
	return Conflict{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
		Code:       code,
		ExistingID: existingID,
	}
}
