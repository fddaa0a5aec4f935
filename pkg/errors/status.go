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

// Package errors provides structured error management with status codes and
// machine-readable error codes shared by the sync engine, the hub server and
// the replica client.
package errors

import (
	"fmt"
	"net/http"
)

// StatusCode represents the error statuses used throughout the system. The
// numbering follows the gRPC status space so logs stay comparable with other
// services, but the values travel over plain HTTP here (see HTTPStatus).
type StatusCode int

const (
	// ErrCodeInvalidArgument indicates that the caller specified an invalid
	// argument, regardless of the state of the system.
	ErrCodeInvalidArgument StatusCode = 3

	// ErrCodeNotFound indicates that some requested entity was not found.
	ErrCodeNotFound StatusCode = 5

	// ErrCodeAlreadyExists indicates that the entity a caller attempted to
	// create already exists.
	ErrCodeAlreadyExists StatusCode = 6

	// ErrCodePermissionDenied indicates that the caller does not have
	// permission to execute the specified operation.
	ErrCodePermissionDenied StatusCode = 7

	// ErrCodeResourceExhausted indicates that some resource has been
	// exhausted, perhaps a queue capacity or a batch size limit.
	ErrCodeResourceExhausted StatusCode = 8

	// ErrCodeFailedPrecondition indicates that the operation was rejected
	// because the system is not in a state required for its execution.
	// Recoverable sync failures (dependency violations, hash mismatches,
	// clients behind retained history) live here.
	ErrCodeFailedPrecondition StatusCode = 9

	// ErrCodeInternal indicates that some invariants expected by the
	// underlying system have been broken. Reserved for serious errors.
	ErrCodeInternal StatusCode = 13

	// ErrCodeUnavailable indicates that the service is currently
	// unavailable. Usually temporary, so callers can back off and retry
	// idempotent operations.
	ErrCodeUnavailable StatusCode = 14

	// ErrCodeUnauthenticated indicates that the request does not have valid
	// authentication credentials.
	ErrCodeUnauthenticated StatusCode = 16
)

// String returns the string representation of the status code.
func (c StatusCode) String() string {
	switch c {
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeAlreadyExists:
		return "already_exists"
	case ErrCodePermissionDenied:
		return "permission_denied"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeFailedPrecondition:
		return "failed_precondition"
	case ErrCodeInternal:
		return "internal"
	case ErrCodeUnavailable:
		return "unavailable"
	case ErrCodeUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// HTTPStatus returns the HTTP status code the sync API responds with for
// errors carrying this status.
func (c StatusCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyExists:
		return http.StatusConflict
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeResourceExhausted:
		return http.StatusTooManyRequests
	case ErrCodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError returns true if the status code represents a client-side error.
func (c StatusCode) IsClientError() bool {
	switch c {
	case ErrCodeInvalidArgument, ErrCodeNotFound, ErrCodeAlreadyExists,
		ErrCodePermissionDenied, ErrCodeResourceExhausted, ErrCodeFailedPrecondition,
		ErrCodeUnauthenticated:
		return true
	default:
		return false
	}
}

// IsServerError returns true if the status code represents a server-side error.
func (c StatusCode) IsServerError() bool {
	switch c {
	case ErrCodeInternal, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}
