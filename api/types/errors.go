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

package types

import (
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
)

// The failure kinds of the sync engine. Callers wrap these with context via
// fmt.Errorf("...: %w", ...); the machine code survives wrapping and travels
// to the other side of the wire.
var (
	// ErrStorage means the underlying store was unreachable or rejected an
	// operation. Retried by the caller at a higher level, never by the
	// engine itself.
	ErrStorage = errors.Internal("storage operation failed").WithCode("ErrStorage")

	// ErrDependencyViolation means a change references a row that has not
	// arrived yet. Recoverable within a cycle via deferred retry.
	ErrDependencyViolation = errors.FailedPrecond("change depends on a missing row").WithCode("ErrDependencyViolation")

	// ErrHashMismatch means a batch hash did not verify. Integrity failures
	// are surfaced, never auto-corrected.
	ErrHashMismatch = errors.FailedPrecond("batch hash mismatch").WithCode("ErrHashMismatch")

	// ErrFullResyncRequired means the replica's cursor is behind retained
	// history and its next pull cannot be served incrementally.
	ErrFullResyncRequired = errors.FailedPrecond("client is behind retained history").WithCode("ErrFullResyncRequired")

	// ErrUnknownStrategy means an unrecognized conflict resolution strategy
	// was requested.
	ErrUnknownStrategy = errors.InvalidArgument("unknown conflict resolution strategy").WithCode("ErrUnknownStrategy")

	// ErrInvalidInput means the caller supplied a malformed entry, filter
	// or request.
	ErrInvalidInput = errors.InvalidArgument("invalid input").WithCode("ErrInvalidInput")

	// ErrClientNotFound means the origin is not registered with the hub.
	ErrClientNotFound = errors.NotFound("client not found").WithCode("ErrClientNotFound")

	// ErrClientDeactivated means the origin was pruned for inactivity and
	// must re-register before syncing.
	ErrClientDeactivated = errors.FailedPrecond("client is deactivated").WithCode("ErrClientDeactivated")
)

// IsStorageError returns true if the error is a storage failure.
func IsStorageError(err error) bool {
	return errors.IsCode(err, ErrStorage.Code())
}

// IsDependencyViolation returns true if the error is a dependency violation.
func IsDependencyViolation(err error) bool {
	return errors.IsCode(err, ErrDependencyViolation.Code())
}

// IsHashMismatch returns true if the error is a batch integrity failure.
func IsHashMismatch(err error) bool {
	return errors.IsCode(err, ErrHashMismatch.Code())
}

// IsFullResyncRequired returns true if the error signals a needed re-baseline.
func IsFullResyncRequired(err error) bool {
	return errors.IsCode(err, ErrFullResyncRequired.Code())
}

// IsInvalidInput returns true if the error is an input shape violation.
func IsInvalidInput(err error) bool {
	return errors.IsCode(err, ErrInvalidInput.Code())
}
