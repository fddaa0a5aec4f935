/*
 * Copyright 2026 The DataProvider Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import (
	"errors"
)

// StatusError represents an error that carries an error status and an
// optional machine-readable code such as "ErrDependencyViolation". The code
// travels on the wire so replicas can branch on failure kinds without
// parsing messages.
type StatusError interface {
	error
	Status() StatusCode
	Code() string
	WithCode(code string) StatusError
}

// errorWithStatus is the internal implementation of StatusError.
type errorWithStatus struct {
	err    error
	status StatusCode
	code   string
}

// Error returns the error message.
func (e errorWithStatus) Error() string {
	return e.err.Error()
}

// Status returns the error status.
func (e errorWithStatus) Status() StatusCode {
	return e.status
}

// Code returns the machine-readable code of the error.
func (e errorWithStatus) Code() string {
	return e.code
}

// Unwrap returns the underlying error for error chain compatibility.
func (e errorWithStatus) Unwrap() error {
	return e.err
}

// WithCode returns a new StatusError with the specified custom code.
func (e errorWithStatus) WithCode(code string) StatusError {
	return errorWithStatus{
		err:    e.err,
		status: e.status,
		code:   code,
	}
}

// newErrorWithStatus creates a new error with the specified status.
func newErrorWithStatus(err error, status StatusCode) StatusError {
	return errorWithStatus{
		err:    err,
		status: status,
		code:   "",
	}
}

// NotFound creates a new "not found" error.
// Use this when a requested resource does not exist.
func NotFound(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeNotFound)
}

// InvalidArgument creates a new "invalid argument" error.
// Use this when the caller provides invalid input parameters.
func InvalidArgument(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeInvalidArgument)
}

// AlreadyExists creates a new "already exists" error.
// Use this when attempting to create a resource that already exists.
func AlreadyExists(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeAlreadyExists)
}

// PermissionDenied creates a new "permission denied" error.
// Use this when the caller lacks necessary permissions.
func PermissionDenied(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodePermissionDenied)
}

// ResourceExhausted creates a new "resource exhausted" error.
// Use this when quotas or capacity limits are exceeded.
func ResourceExhausted(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeResourceExhausted)
}

// FailedPrecond creates a new "failed precondition" error.
// Use this when the system is not in the required state for the operation.
func FailedPrecond(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeFailedPrecondition)
}

// Unauthenticated creates a new "unauthenticated" error.
// Use this when authentication is required but not provided or invalid.
func Unauthenticated(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeUnauthenticated)
}

// Internal creates a new "internal" error.
// Use this for unexpected failures such as an unreachable store.
func Internal(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeInternal)
}

// Unavailable creates a new "unavailable" error.
// Use this when the service is temporarily unavailable.
func Unavailable(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeUnavailable)
}

// StatusOf extracts the error status from an error.
// If the error implements StatusError, it returns the error's status.
// If the error wraps a StatusError, it unwraps and returns the wrapped
// error's status. If no status is found, it returns 0.
func StatusOf(err error) StatusCode {
	if err == nil {
		return 0
	}

	if statusErr, ok := err.(StatusError); ok {
		return statusErr.Status()
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status()
	}

	return 0
}

// CodeOf extracts the machine-readable code from an error, or "" if the
// error carries none.
func CodeOf(err error) string {
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code()
	}
	return ""
}

// IsStatus checks if the given error has the specified error status.
func IsStatus(err error, code StatusCode) bool {
	return StatusOf(err) == code
}

// IsCode checks if the given error carries the specified machine-readable code.
func IsCode(err error, code string) bool {
	return code != "" && CodeOf(err) == code
}

// IsClientError checks if the error represents a client-side error.
func IsClientError(err error) bool {
	return StatusOf(err).IsClientError()
}

// IsServerError checks if the error represents a server-side error.
func IsServerError(err error) bool {
	return StatusOf(err).IsServerError()
}
