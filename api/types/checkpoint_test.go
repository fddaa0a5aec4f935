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

package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

func TestCheckpoint(t *testing.T) {
	t.Run("forward keeps greater cursors test", func(t *testing.T) {
		cp := types.NewCheckpoint(10, 5)

		assert.Equal(t, types.NewCheckpoint(10, 5), cp.Forward(types.NewCheckpoint(3, 2)))
		assert.Equal(t, types.NewCheckpoint(12, 5), cp.Forward(types.NewCheckpoint(12, 1)))
		assert.Equal(t, types.NewCheckpoint(12, 8), cp.Forward(types.NewCheckpoint(12, 8)))
		assert.Equal(t, cp, cp.Forward(cp))
	})

	t.Run("sync moves forward only test", func(t *testing.T) {
		cp := types.NewCheckpoint(10, 5)

		assert.Equal(t, cp, cp.SyncServerVersion(9))
		assert.Equal(t, types.NewCheckpoint(11, 5), cp.SyncServerVersion(11))
		assert.Equal(t, cp, cp.SyncPushedVersion(4))
		assert.Equal(t, types.NewCheckpoint(10, 6), cp.SyncPushedVersion(6))
	})

	t.Run("next server version test", func(t *testing.T) {
		cp := types.NewCheckpoint(10, 5)

		assert.Equal(t, cp, cp.NextServerVersion(10))
		assert.Equal(t, types.NewCheckpoint(20, 5), cp.NextServerVersion(20))
	})

	t.Run("initial checkpoint test", func(t *testing.T) {
		assert.True(t, types.InitialCheckpoint.Equals(types.NewCheckpoint(0, 0)))
		assert.Equal(t, "serverVersion=0, pushedVersion=0", types.InitialCheckpoint.String())
	})
}
