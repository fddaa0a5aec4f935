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

// Package cjson implements canonical JSON encoding for change hashing.
// Canonical form sorts object keys in ascending byte order at every depth,
// emits no insignificant whitespace, keeps number literals exactly as they
// were parsed and does not escape HTML characters. Equal logical content
// therefore always produces byte-identical output, which makes SHA-256
// hashes of change batches reproducible across replicas and languages.
package cjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

const hexDigits = "0123456789abcdef"

// Canonicalize parses a single JSON value and re-emits it in canonical form.
// Number literals survive untouched, so a value that round-trips through
// Canonicalize re-canonicalizes to the same bytes.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after json value")
	}

	buf := &bytes.Buffer{}
	if err := encode(buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal encodes an arbitrary Go value in canonical form. The value is
// serialized with encoding/json first, so struct tags apply as usual, and
// the result is re-emitted canonically.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return Canonicalize(data)
}

// Equal reports whether two JSON documents have the same canonical form.
func Equal(a, b []byte) (bool, error) {
	ca, err := Canonicalize(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonicalize(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

func encode(buf *bytes.Buffer, value any) error {
	switch val := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(string(val))
	case string:
		encodeString(buf, val)
	case []any:
		return encodeArray(buf, val)
	case map[string]any:
		return encodeObject(buf, val)
	case float64:
		// Marshal path values that did not pass through UseNumber.
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	default:
		return fmt.Errorf("unsupported type %T in canonical json", value)
	}
	return nil
}

func encodeArray(buf *bytes.Buffer, values []any) error {
	buf.WriteByte('[')
	for i, elem := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, object map[string]any) error {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, key)
		buf.WriteByte(':')
		if err := encode(buf, object[key]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// encodeString writes s with the minimal escaping JSON requires: quote,
// backslash and control characters. Everything else, including non-ASCII
// runes and HTML characters, is emitted verbatim as UTF-8.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c == '\b':
			buf.WriteString(`\b`)
		case c == '\f':
			buf.WriteString(`\f`)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xF])
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}
