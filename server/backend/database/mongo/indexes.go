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

package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	// ColClients represents the clients collection in the database.
	ColClients = "clients"
	// ColChanges represents the changes collection in the database.
	ColChanges = "changes"
	// ColRows represents the materialized rows collection in the database.
	ColRows = "rows"
	// ColMeta represents the singleton counter collection in the database.
	ColMeta = "meta"
)

// Collections represents the list of all collections in the database.
var Collections = []string{
	ColClients,
	ColChanges,
	ColRows,
	ColMeta,
}

type collectionInfo struct {
	name    string
	indexes []mongo.IndexModel
}

// Below are names and indexes information of Collections that stores the
// hub's data. Clients, rows and meta are keyed by _id alone, which MongoDB
// indexes on its own.
var collectionInfos = []collectionInfo{
	{
		name: ColClients,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{
				{Key: "status", Value: int32(1)},
				{Key: "last_synced_at", Value: int32(1)},
			},
		}},
	},
	{
		name: ColChanges,
		indexes: []mongo.IndexModel{{
			Keys:    bson.D{{Key: "version", Value: int32(1)}},
			Options: options.Index().SetUnique(true),
		}, {
			Keys: bson.D{
				{Key: "origin", Value: int32(1)},
				{Key: "local_version", Value: int32(1)},
			},
		}},
	},
	{
		name: ColRows,
		indexes: []mongo.IndexModel{{
			Keys: bson.D{
				{Key: "table_lower", Value: int32(1)},
				{Key: "_id", Value: int32(1)},
			},
		}},
	},
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, info := range collectionInfos {
		_, err := db.Collection(info.name).Indexes().CreateMany(ctx, info.indexes)
		if err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}
	}
	return nil
}
