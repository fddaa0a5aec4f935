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

// Package validation provides validation of user-supplied values such as
// origin IDs, table names and API request bodies.
package validation

import (
	goerrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
)

// Table names flow into generated trigger and upsert SQL, so the charset is
// restricted to plain identifiers.
const tableNameRegexString = `^[A-Za-z_][A-Za-z0-9_]{0,127}$`

var tableNameRegex = regexp.MustCompile(tableNameRegexString)

var (
	// defaultValidator is the validator instance shared by this package.
	defaultValidator = validator.New()

	// defaultEn is the default translator instance for the 'en' locale.
	defaultEn = en.New()

	// uni is the UniversalTranslator instance set with the fallback locale
	// and the locales it should support.
	uni = ut.New(defaultEn, defaultEn)

	// trans is the translator for the given locale, or fallback if not found.
	trans, _ = uni.GetTranslator(defaultEn.Locale())
)

// Violation is one failed rule of a validated value.
type Violation struct {
	Tag         string
	Field       string
	Err         error
	Description string
}

// Error returns the error message.
func (v Violation) Error() string {
	return v.Err.Error()
}

// StructError is the error returned by the validation of a struct.
type StructError struct {
	Violations []Violation
}

// Error returns the error message.
func (s *StructError) Error() string {
	sb := strings.Builder{}
	for _, v := range s.Violations {
		sb.WriteString(v.Description)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// RegisterValidation registers a custom validation with the given tag.
func RegisterValidation(tag string, fn validator.Func) error {
	if err := defaultValidator.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("register validation: %w", err)
	}
	return nil
}

// RegisterTranslation registers a translation against the provided tag.
func RegisterTranslation(tag, msg string) error {
	if err := defaultValidator.RegisterTranslation(
		tag,
		trans,
		func(ut ut.Translator) error {
			if err := ut.Add(tag, msg, true); err != nil {
				return fmt.Errorf("register translation: %w", err)
			}
			return nil
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	); err != nil {
		return fmt.Errorf("register translation: %w", err)
	}
	return nil
}

// ValidateStruct validates the given struct against its `validate` tags and
// returns a StructError carrying every violation.
func ValidateStruct(s any) error {
	if err := defaultValidator.Struct(s); err != nil {
		var invalid *validator.InvalidValidationError
		if ok := goerrors.As(err, &invalid); ok {
			return fmt.Errorf("validate struct: %w", err)
		}

		structError := &StructError{}
		for _, e := range err.(validator.ValidationErrors) {
			structError.Violations = append(structError.Violations, Violation{
				Tag:         e.Tag(),
				Field:       e.Field(),
				Err:         e,
				Description: e.Translate(trans),
			})
		}
		return structError
	}
	return nil
}

// ValidateValue validates a single value with the given tag expression.
func ValidateValue(v any, tag string) error {
	if err := defaultValidator.Var(v, tag); err != nil {
		for _, e := range err.(validator.ValidationErrors) {
			return Violation{
				Tag:         e.Tag(),
				Err:         e,
				Description: e.Translate(trans),
			}
		}
	}
	return nil
}

// ToStatusError converts a validation failure into an invalid-argument
// status error with per-field metadata, so API handlers can return it
// directly.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}

	var structError *StructError
	if goerrors.As(err, &structError) {
		metadata := make(map[string]string, len(structError.Violations))
		for _, v := range structError.Violations {
			metadata[v.Field] = v.Description
		}
		return errors.WithMetadata(
			errors.InvalidArgument(structError.Error()).WithCode("ErrInvalidInput"),
			metadata,
		)
	}
	return errors.InvalidArgument(err.Error()).WithCode("ErrInvalidInput")
}

// IsValidTableName reports whether the given name is usable as a tracked
// table identifier.
func IsValidTableName(name string) bool {
	return tableNameRegex.MatchString(name)
}

// IsValidOriginID reports whether the given value is a UUID-shaped origin.
func IsValidOriginID(origin string) bool {
	_, err := uuid.Parse(origin)
	return err == nil
}

func init() {
	rules := []struct {
		tag string
		fn  validator.Func
		msg string
	}{
		{
			tag: "table_name",
			fn: func(fl validator.FieldLevel) bool {
				return IsValidTableName(fl.Field().String())
			},
			msg: "{0} must be a plain table identifier",
		},
		{
			tag: "origin_id",
			fn: func(fl validator.FieldLevel) bool {
				return IsValidOriginID(fl.Field().String())
			},
			msg: "{0} must be a UUID-shaped origin id",
		},
	}

	for _, rule := range rules {
		if err := RegisterValidation(rule.tag, rule.fn); err != nil {
			panic(err)
		}
		if err := RegisterTranslation(rule.tag, rule.msg); err != nil {
			panic(err)
		}
	}
}
