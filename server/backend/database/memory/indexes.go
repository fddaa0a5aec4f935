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

package memory

import "github.com/hashicorp/go-memdb"

var (
	tblClients = "clients"
	tblChanges = "changes"
	tblRows    = "rows"
	tblMeta    = "meta"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblClients: {
			Name: tblClients,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "OriginID"},
				},
			},
		},
		tblChanges: {
			Name: tblChanges,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"version": {
					Name:    "version",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "Version"},
				},
			},
		},
		tblRows: {
			Name: tblRows,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"table": {
					Name: "table",
					Indexer: &memdb.StringFieldIndex{
						Field:     "TableName",
						Lowercase: true,
					},
				},
			},
		},
		tblMeta: {
			Name: tblMeta,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
	},
}
