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

package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
)

func TestStatusCode_String(t *testing.T) {
	tests := []struct {
		name string
		code errors.StatusCode
		want string
	}{
		{"InvalidArgument", errors.ErrCodeInvalidArgument, "invalid_argument"},
		{"NotFound", errors.ErrCodeNotFound, "not_found"},
		{"AlreadyExists", errors.ErrCodeAlreadyExists, "already_exists"},
		{"PermissionDenied", errors.ErrCodePermissionDenied, "permission_denied"},
		{"ResourceExhausted", errors.ErrCodeResourceExhausted, "resource_exhausted"},
		{"FailedPrecondition", errors.ErrCodeFailedPrecondition, "failed_precondition"},
		{"Internal", errors.ErrCodeInternal, "internal"},
		{"Unavailable", errors.ErrCodeUnavailable, "unavailable"},
		{"Unauthenticated", errors.ErrCodeUnauthenticated, "unauthenticated"},
		{"Unknown", errors.StatusCode(999), "code_999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestStatusCode_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errors.ErrCodeInvalidArgument.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, errors.ErrCodeNotFound.HTTPStatus())
	assert.Equal(t, http.StatusPreconditionFailed, errors.ErrCodeFailedPrecondition.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, errors.ErrCodeInternal.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, errors.ErrCodeUnavailable.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, errors.StatusCode(999).HTTPStatus())
}

func TestStatusError(t *testing.T) {
	t.Run("status and code round-trip test", func(t *testing.T) {
		err := errors.FailedPrecond("row depends on a missing parent").
			WithCode("ErrDependencyViolation")

		assert.Equal(t, errors.ErrCodeFailedPrecondition, err.Status())
		assert.Equal(t, "ErrDependencyViolation", err.Code())
		assert.Equal(t, "row depends on a missing parent", err.Error())
		assert.True(t, errors.IsStatus(err, errors.ErrCodeFailedPrecondition))
		assert.True(t, errors.IsCode(err, "ErrDependencyViolation"))
		assert.False(t, errors.IsCode(err, "ErrHashMismatch"))
	})

	t.Run("wrapped status error test", func(t *testing.T) {
		base := errors.Internal("store unreachable").WithCode("ErrStorage")
		wrapped := fmt.Errorf("apply changes: %w", base)

		assert.Equal(t, errors.ErrCodeInternal, errors.StatusOf(wrapped))
		assert.Equal(t, "ErrStorage", errors.CodeOf(wrapped))
		assert.True(t, errors.IsServerError(wrapped))
		assert.False(t, errors.IsClientError(wrapped))
	})

	t.Run("plain error has no status test", func(t *testing.T) {
		err := fmt.Errorf("plain failure")

		assert.Equal(t, errors.StatusCode(0), errors.StatusOf(err))
		assert.Equal(t, "", errors.CodeOf(err))
		assert.False(t, errors.IsCode(err, ""))
	})
}

func TestMetadata(t *testing.T) {
	t.Run("metadata attach and extract test", func(t *testing.T) {
		base := errors.InvalidArgument("invalid entry").WithCode("ErrInvalidInput")
		err := errors.WithMetadata(base, map[string]string{"tableName": "required"})

		assert.Equal(t, map[string]string{"tableName": "required"}, errors.Metadata(err))
		assert.Equal(t, errors.ErrCodeInvalidArgument, errors.StatusOf(err))
		assert.Equal(t, "ErrInvalidInput", errors.CodeOf(err))
	})

	t.Run("metadata merge test", func(t *testing.T) {
		base := errors.InvalidArgument("invalid entry")
		err := errors.WithMetadata(base, map[string]string{"a": "1"})
		err = errors.WithMetadata(err, map[string]string{"b": "2"})

		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, errors.Metadata(err))
	})

	t.Run("nil and empty metadata test", func(t *testing.T) {
		assert.NoError(t, errors.WithMetadata(nil, map[string]string{"a": "1"}))

		base := errors.NotFound("missing")
		assert.Equal(t, error(base), errors.WithMetadata(base, nil))
		assert.Nil(t, errors.Metadata(base))
	})
}
