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

package cjson_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/cjson"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCanonicalize(t *testing.T) {
	t.Run("key order independence test", func(t *testing.T) {
		a, err := cjson.Canonicalize([]byte(`{"b":2,"a":1}`))
		assert.NoError(t, err)
		b, err := cjson.Canonicalize([]byte(`{"a":1,"b":2}`))
		assert.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Equal(t, `{"a":1,"b":2}`, string(a))
	})

	t.Run("nested keys sorted at every depth test", func(t *testing.T) {
		out, err := cjson.Canonicalize([]byte(`{"z":{"b":1,"a":2},"a":[{"y":1,"x":2}]}`))
		assert.NoError(t, err)
		assert.Equal(t, `{"a":[{"x":2,"y":1}],"z":{"a":2,"b":1}}`, string(out))
	})

	t.Run("array order preserved test", func(t *testing.T) {
		out, err := cjson.Canonicalize([]byte(`[3,1,2]`))
		assert.NoError(t, err)
		assert.Equal(t, `[3,1,2]`, string(out))
	})

	t.Run("number literals preserved test", func(t *testing.T) {
		out, err := cjson.Canonicalize([]byte(`{"a":1.50,"b":1e3,"c":-0.0,"d":9223372036854775807}`))
		assert.NoError(t, err)
		assert.Equal(t, `{"a":1.50,"b":1e3,"c":-0.0,"d":9223372036854775807}`, string(out))
	})

	t.Run("whitespace stripped test", func(t *testing.T) {
		out, err := cjson.Canonicalize([]byte(" {\n\t\"a\" : [ 1 , 2 ] ,\n\t\"b\" : null\n} "))
		assert.NoError(t, err)
		assert.Equal(t, `{"a":[1,2],"b":null}`, string(out))
	})

	t.Run("no html escaping test", func(t *testing.T) {
		out, err := cjson.Canonicalize([]byte(`{"a":"<tag> & 'x'"}`))
		assert.NoError(t, err)
		assert.Equal(t, `{"a":"<tag> & 'x'"}`, string(out))
	})

	t.Run("control characters escaped test", func(t *testing.T) {
		out, err := cjson.Canonicalize([]byte(`{"a":"line\nbreak"}`))
		assert.NoError(t, err)
		assert.Equal(t, `{"a":"line\nbreak"}`, string(out))
	})

	t.Run("canonical form is a fixed point test", func(t *testing.T) {
		once, err := cjson.Canonicalize([]byte(`{"b":{"d":4,"c":[true,false,null]},"a":"π"}`))
		assert.NoError(t, err)
		twice, err := cjson.Canonicalize(once)
		assert.NoError(t, err)
		assert.Equal(t, once, twice)
	})

	t.Run("invalid input test", func(t *testing.T) {
		_, err := cjson.Canonicalize([]byte(`{"a":`))
		assert.Error(t, err)

		_, err = cjson.Canonicalize([]byte(`{"a":1} trailing`))
		assert.Error(t, err)

		_, err = cjson.Canonicalize([]byte(``))
		assert.Error(t, err)
	})
}

func TestMarshal(t *testing.T) {
	t.Run("map marshals sorted test", func(t *testing.T) {
		out, err := cjson.Marshal(map[string]any{"b": 2, "a": 1})
		assert.NoError(t, err)
		assert.Equal(t, `{"a":1,"b":2}`, string(out))
	})

	t.Run("struct tags apply test", func(t *testing.T) {
		in := struct {
			Name  string `json:"name"`
			Age   int    `json:"age"`
			Empty string `json:"empty,omitempty"`
		}{Name: "Alice", Age: 30}

		out, err := cjson.Marshal(in)
		assert.NoError(t, err)
		assert.Equal(t, `{"age":30,"name":"Alice"}`, string(out))
	})
}

func TestEqual(t *testing.T) {
	eq, err := cjson.Equal([]byte(`{"b":2,"a":1}`), []byte(`{ "a": 1, "b": 2 }`))
	assert.NoError(t, err)
	assert.True(t, eq)

	eq, err = cjson.Equal([]byte(`{"a":1}`), []byte(`{"a":2}`))
	assert.NoError(t, err)
	assert.False(t, eq)

	_, err = cjson.Equal([]byte(`{`), []byte(`{}`))
	assert.Error(t, err)
}

func TestGolden(t *testing.T) {
	g := golden(t)

	t.Run("change entry golden test", func(t *testing.T) {
		in := []byte(`{
			"timestamp": 1700000000123,
			"version": 7,
			"tableName": "Person",
			"pkValue": {"id": "p1"},
			"operation": "Update",
			"origin": "0b0e7a26-97fe-4cd5-aa34-07e35a5d4f4e",
			"payload": {"name": "Alice Updated", "age": 30, "isActive": true, "notes": null}
		}`)
		out, err := cjson.Canonicalize(in)
		assert.NoError(t, err)
		g.Assert(t, "change_entry", out)
	})

	t.Run("mixed values golden test", func(t *testing.T) {
		in := []byte(`{"b":2,"a":1,"text":"<a href=\"x\">&\n\tok","nested":{"z":[3,2,1],"y":{"k2":"v2","k1":"v1"}},"num":1.50,"exp":1e3,"empty":{},"arr":[]}`)
		out, err := cjson.Canonicalize(in)
		assert.NoError(t, err)
		g.Assert(t, "mixed_values", out)
	})
}
