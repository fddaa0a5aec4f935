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

package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database/memory"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database/testcases"
)

func TestDB(t *testing.T) {
	db, err := memory.New()
	assert.NoError(t, err)

	t.Run("EnsureClient test", func(t *testing.T) {
		testcases.RunEnsureClientTest(t, db)
	})

	t.Run("FindClient test", func(t *testing.T) {
		testcases.RunFindClientTest(t, db)
	})

	t.Run("AppendChanges test", func(t *testing.T) {
		testcases.RunAppendChangesTest(t, db)
	})

	t.Run("FindChangesSince test", func(t *testing.T) {
		testcases.RunFindChangesSinceTest(t, db)
	})

	t.Run("RowFolding test", func(t *testing.T) {
		testcases.RunRowFoldingTest(t, db)
	})

	t.Run("ListRows test", func(t *testing.T) {
		testcases.RunListRowsTest(t, db)
	})

	t.Run("Retention test", func(t *testing.T) {
		testcases.RunRetentionTest(t, db)
	})

	t.Run("UpdateCheckpoint test", func(t *testing.T) {
		testcases.RunUpdateCheckpointTest(t, db)
	})

	t.Run("DeactivateClient test", func(t *testing.T) {
		testcases.RunDeactivateClientTest(t, db)
	})
}
