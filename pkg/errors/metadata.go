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

// MetadataError represents an error with additional metadata, such as the
// per-field violations reported by input validation or the entry refs still
// failing after a sync batch exhausts its retry passes.
type MetadataError struct {
	err      error
	metadata map[string]string
}

// Error returns the error message.
func (e MetadataError) Error() string {
	return e.err.Error()
}

// Status returns the error status from the underlying error.
func (e MetadataError) Status() StatusCode {
	return StatusOf(e.err)
}

// Unwrap returns the underlying error for error chain compatibility.
func (e MetadataError) Unwrap() error {
	return e.err
}

// Metadata returns a copy of the metadata associated with the error.
func (e MetadataError) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// WithMetadata wraps an error with additional metadata. If the error already
// carries metadata, the maps are merged with the new entries taking
// precedence.
func WithMetadata(err error, metadata map[string]string) error {
	if err == nil {
		return nil
	}
	if len(metadata) == 0 {
		return err
	}

	merged := Metadata(err)
	if merged == nil {
		merged = make(map[string]string, len(metadata))
	}
	for k, v := range metadata {
		merged[k] = v
	}

	return MetadataError{err: err, metadata: merged}
}

// Metadata extracts the metadata from an error, or nil if the error carries
// none.
func Metadata(err error) map[string]string {
	var metaErr MetadataError
	if errors.As(err, &metaErr) {
		return metaErr.Metadata()
	}
	return nil
}
