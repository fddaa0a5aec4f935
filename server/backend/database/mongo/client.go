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

// Package mongo implements database interfaces using MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gotime "time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// metaID is the fixed _id of the singleton counter document.
const metaID = "meta"

// metaDoc carries the log-wide counters: the commit horizon of the change
// log and the purge boundary. Readers never look at changes above
// last_version, so a push that dies between its bulk write and the counter
// update leaves no visible trace.
type metaDoc struct {
	ID            string `bson:"_id"`
	LastVersion   int64  `bson:"last_version"`
	PurgedThrough int64  `bson:"purged_through"`
}

// Client is a client that connects to Mongo DB and reads or saves the hub's
// data.
type Client struct {
	config *Config
	client *mongo.Client

	clientCache *lru.Cache[string, *database.ClientInfo]
}

// Dial creates an instance of Client and dials the given MongoDB.
func Dial(conf *Config) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.ParseConnectionTimeout())
	defer cancel()

	clientOptions := options.Client().ApplyURI(conf.ConnectionURI)

	if conf.MonitoringEnabled {
		threshold, err := gotime.ParseDuration(conf.MonitoringSlowQueryThreshold)
		if err != nil {
			return nil, fmt.Errorf("parse slow query threshold: %w", err)
		}

		monitor := NewQueryMonitor(&MonitorConfig{
			Enabled:            conf.MonitoringEnabled,
			SlowQueryThreshold: threshold,
		})

		clientOptions.SetMonitor(monitor.CreateCommandMonitor())
	}

	client, err := mongo.Connect(
		clientOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingTimeout := conf.ParsePingTimeout()
	ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if err := ensureIndexes(ctx, client.Database(conf.Database)); err != nil {
		return nil, err
	}

	clientCache, err := lru.New[string, *database.ClientInfo](1000)
	if err != nil {
		return nil, fmt.Errorf("initialize client info cache: %w", err)
	}

	logging.DefaultLogger().Infof("MongoDB connected, URI: %s, DB: %s", conf.ConnectionURI, conf.Database)

	return &Client{
		config:      conf,
		client:      client,
		clientCache: clientCache,
	}, nil
}

// Close all resources of this client.
func (c *Client) Close() error {
	if err := c.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}

	c.clientCache.Purge()

	return nil
}

// EnsureClient finds the client of the given origin, registering or
// reactivating it if needed.
func (c *Client) EnsureClient(ctx context.Context, originID string) (*database.ClientInfo, error) {
	now := gotime.Now()

	if _, err := c.collection(ColClients).UpdateOne(ctx, bson.M{
		"_id": originID,
	}, bson.M{
		"$set": bson.M{
			"status":         types.ClientActivated,
			"last_synced_at": now,
		},
		"$setOnInsert": bson.M{
			"server_version":  int64(0),
			"pushed_version":  int64(0),
			"resync_required": false,
			"created_at":      now,
		},
	}, options.UpdateOne().SetUpsert(true)); err != nil {
		return nil, fmt.Errorf("upsert client: %w", err)
	}

	info, err := c.findClientInfo(ctx, originID)
	if err != nil {
		return nil, err
	}
	c.clientCache.Add(originID, info)

	return info.DeepCopy(), nil
}

// FindClient finds the client of the given origin.
func (c *Client) FindClient(ctx context.Context, originID string) (*database.ClientInfo, error) {
	if cached, ok := c.clientCache.Get(originID); ok {
		return cached.DeepCopy(), nil
	}

	info, err := c.findClientInfo(ctx, originID)
	if err != nil {
		return nil, err
	}
	c.clientCache.Add(originID, info)

	return info.DeepCopy(), nil
}

// ListClients returns the whole client registry.
func (c *Client) ListClients(ctx context.Context) ([]*database.ClientInfo, error) {
	cursor, err := c.collection(ColClients).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	var infos []*database.ClientInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("fetch clients: %w", err)
	}
	return infos, nil
}

// UpdateCheckpoint forwards the client's cursors, refreshes its last-synced
// time, and lifts the resync flag once the cursor is back inside retained
// history. $max keeps the forwarding monotone even when requests arrive out
// of order.
func (c *Client) UpdateCheckpoint(
	ctx context.Context,
	originID string,
	cp types.Checkpoint,
) (*database.ClientInfo, error) {
	result := c.collection(ColClients).FindOneAndUpdate(ctx, bson.M{
		"_id": originID,
	}, bson.M{
		"$max": bson.M{
			"server_version": cp.ServerVersion,
			"pushed_version": cp.PushedVersion,
		},
		"$set": bson.M{"last_synced_at": gotime.Now()},
	}, options.FindOneAndUpdate().SetReturnDocument(options.After))

	info := database.ClientInfo{}
	if err := result.Decode(&info); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
		}
		return nil, fmt.Errorf("decode client info: %w", err)
	}

	if info.ResyncRequired {
		oldest, err := c.OldestAvailableVersion(ctx)
		if err != nil {
			return nil, err
		}
		if info.ServerVersion >= oldest-1 {
			if _, err := c.collection(ColClients).UpdateOne(ctx, bson.M{
				"_id": originID,
			}, bson.M{
				"$set": bson.M{"resync_required": false},
			}); err != nil {
				return nil, fmt.Errorf("clear resync flag of %s: %w", originID, err)
			}
			info.ResyncRequired = false
		}
	}

	c.clientCache.Add(originID, &info)
	return info.DeepCopy(), nil
}

// DeactivateClient deactivates the client of the given origin.
func (c *Client) DeactivateClient(ctx context.Context, originID string) (*database.ClientInfo, error) {
	result := c.collection(ColClients).FindOneAndUpdate(ctx, bson.M{
		"_id": originID,
	}, bson.M{
		"$set": bson.M{
			"status":         types.ClientDeactivated,
			"last_synced_at": gotime.Now(),
		},
	}, options.FindOneAndUpdate().SetReturnDocument(options.After))

	info := database.ClientInfo{}
	if err := result.Decode(&info); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
		}
		return nil, fmt.Errorf("decode client info: %w", err)
	}

	c.clientCache.Add(originID, &info)
	return info.DeepCopy(), nil
}

// MarkResyncRequired flags that the client's next pull cannot be served
// incrementally.
func (c *Client) MarkResyncRequired(ctx context.Context, originID string) error {
	res, err := c.collection(ColClients).UpdateOne(ctx, bson.M{
		"_id": originID,
	}, bson.M{
		"$set": bson.M{"resync_required": true},
	})
	if err != nil {
		return fmt.Errorf("mark resync of %s: %w", originID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
	}

	c.clientCache.Remove(originID)
	return nil
}

// AppendChanges appends the client's pushed entries to the change log,
// assigning hub versions, and folds them into the materialized rows.
func (c *Client) AppendChanges(
	ctx context.Context,
	originID string,
	entries []types.SyncLogEntry,
) ([]*database.ChangeInfo, error) {
	// 01. Fetch the pushing client and make sure it may push. The watermark
	// is read fresh, not from the cache, so replays are judged against
	// committed state.
	clientInfo, err := c.findClientInfo(ctx, originID)
	if err != nil {
		return nil, err
	}
	if err := clientInfo.EnsureActivated(); err != nil {
		return nil, err
	}

	now := gotime.Now()

	// 02. Reserve hub versions for the entries above the watermark.
	meta, err := c.getMeta(ctx)
	if err != nil {
		return nil, err
	}
	initial := meta.LastVersion

	lastLocal := clientInfo.PushedVersion
	var appended []*database.ChangeInfo
	for _, entry := range entries {
		if entry.Version <= clientInfo.PushedVersion {
			continue
		}

		info, err := database.NewChangeInfoFromEntry(entry)
		if err != nil {
			return nil, err
		}
		meta.LastVersion++
		info.ID = newID()
		info.Version = meta.LastVersion
		info.CreatedAt = now

		if entry.Version > lastLocal {
			lastLocal = entry.Version
		}
		appended = append(appended, info)
	}

	if len(appended) == 0 {
		if _, err := c.collection(ColClients).UpdateOne(ctx, bson.M{
			"_id": originID,
		}, bson.M{
			"$set": bson.M{"last_synced_at": now},
		}); err != nil {
			return nil, fmt.Errorf("touch client %s: %w", originID, err)
		}
		c.clientCache.Remove(originID)
		return nil, nil
	}

	// 03. Write the change log and fold the materialized rows. Writes are
	// keyed by version and row, so replaying a half-acknowledged push
	// overwrites instead of duplicating.
	changeModels := make([]mongo.WriteModel, 0, len(appended))
	for _, info := range appended {
		changeModels = append(changeModels, mongo.NewUpdateOneModel().SetFilter(bson.M{
			"version": info.Version,
		}).SetUpdate(bson.M{
			"$set": bson.M{
				"table_name":    info.TableName,
				"pk_value":      info.PkValue,
				"operation":     info.Operation,
				"payload":       info.Payload,
				"origin":        info.Origin,
				"timestamp":     info.Timestamp,
				"local_version": info.LocalVersion,
				"created_at":    info.CreatedAt,
			},
			"$setOnInsert": bson.M{"_id": info.ID},
		}).SetUpsert(true))
	}
	if _, err := c.collection(ColChanges).BulkWrite(
		ctx,
		changeModels,
		options.BulkWrite().SetOrdered(false),
	); err != nil {
		return nil, fmt.Errorf("bulk write changes: %w", err)
	}

	rowModels, err := buildRowModels(appended)
	if err != nil {
		return nil, err
	}
	if _, err := c.collection(ColRows).BulkWrite(
		ctx,
		rowModels,
		options.BulkWrite().SetOrdered(true),
	); err != nil {
		return nil, fmt.Errorf("bulk write rows: %w", err)
	}

	// 04. Advance the commit horizon, detecting pushes that raced us. The
	// caller's next sync cycle replays the push; the version-keyed writes
	// above make that safe.
	res, err := c.collection(ColMeta).UpdateOne(ctx, bson.M{
		"_id":          metaID,
		"last_version": initial,
	}, bson.M{
		"$set": bson.M{"last_version": meta.LastVersion},
	}, options.UpdateOne().SetUpsert(initial == 0))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("version counter moved past %d: %w", initial, types.ErrStorage)
		}
		return nil, fmt.Errorf("advance version counter: %w", err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return nil, fmt.Errorf("version counter moved past %d: %w", initial, types.ErrStorage)
	}

	// 05. Forward the client's push watermark.
	if _, err := c.collection(ColClients).UpdateOne(ctx, bson.M{
		"_id": originID,
	}, bson.M{
		"$max": bson.M{"pushed_version": lastLocal},
		"$set": bson.M{"last_synced_at": now},
	}); err != nil {
		return nil, fmt.Errorf("update client %s: %w", originID, err)
	}
	c.clientCache.Remove(originID)

	return appended, nil
}

// FindChangesSince returns up to limit changes with version greater than
// fromVersion in ascending version order.
func (c *Client) FindChangesSince(
	ctx context.Context,
	fromVersion int64,
	limit int,
) ([]*database.ChangeInfo, error) {
	last, err := c.MaxVersion(ctx)
	if err != nil {
		return nil, err
	}
	if fromVersion >= last {
		return nil, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := c.collection(ColChanges).Find(ctx, bson.M{
		"version": bson.M{
			"$gt":  fromVersion,
			"$lte": last,
		},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("find changes: %w", err)
	}

	var infos []*database.ChangeInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("fetch changes: %w", err)
	}
	return infos, nil
}

// MaxVersion returns the highest version ever assigned in the change log.
func (c *Client) MaxVersion(ctx context.Context) (int64, error) {
	meta, err := c.getMeta(ctx)
	if err != nil {
		return 0, err
	}
	return meta.LastVersion, nil
}

// OldestAvailableVersion returns the lowest version the log still retains,
// or purgedThrough+1 when the log is empty.
func (c *Client) OldestAvailableVersion(ctx context.Context) (int64, error) {
	meta, err := c.getMeta(ctx)
	if err != nil {
		return 0, err
	}

	result := c.collection(ColChanges).FindOne(ctx, bson.M{
		"version": bson.M{"$lte": meta.LastVersion},
	}, options.FindOne().SetSort(bson.D{{Key: "version", Value: 1}}))

	info := database.ChangeInfo{}
	if err := result.Decode(&info); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return meta.PurgedThrough + 1, nil
		}
		return 0, fmt.Errorf("decode change info: %w", err)
	}
	return info.Version, nil
}

// PurgeChanges removes log entries with version at or below through.
func (c *Client) PurgeChanges(ctx context.Context, through int64) (int64, error) {
	meta, err := c.getMeta(ctx)
	if err != nil {
		return 0, err
	}

	cut := through
	if cut > meta.LastVersion {
		cut = meta.LastVersion
	}

	res, err := c.collection(ColChanges).DeleteMany(ctx, bson.M{
		"version": bson.M{"$lte": cut},
	})
	if err != nil {
		return 0, fmt.Errorf("purge changes through %d: %w", through, err)
	}

	if cut > meta.PurgedThrough {
		if _, err := c.collection(ColMeta).UpdateOne(ctx, bson.M{
			"_id": metaID,
		}, bson.M{
			"$max": bson.M{"purged_through": cut},
		}); err != nil {
			return 0, fmt.Errorf("update purge boundary: %w", err)
		}
	}

	return res.DeletedCount, nil
}

// ListRows returns the materialized rows of the given tables, or of all
// tables when tables is empty, ordered by table then primary key.
func (c *Client) ListRows(ctx context.Context, tables []string) ([]*database.RowInfo, error) {
	filter := bson.M{}
	if len(tables) > 0 {
		lowered := make([]string, 0, len(tables))
		for _, name := range tables {
			lowered = append(lowered, strings.ToLower(name))
		}
		filter["table_lower"] = bson.M{"$in": lowered}
	}

	cursor, err := c.collection(ColRows).Find(
		ctx,
		filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	var infos []*database.RowInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	return infos, nil
}

// buildRowModels folds the appended changes into row writes. Ordered
// execution keeps multiple changes to one row within a push applying in
// version order.
func buildRowModels(infos []*database.ChangeInfo) ([]mongo.WriteModel, error) {
	models := make([]mongo.WriteModel, 0, len(infos))
	for _, info := range infos {
		entry := info.ToEntry()
		pk, err := entry.CanonicalPk()
		if err != nil {
			return nil, err
		}
		key := database.RowKey(info.TableName, pk)

		if entry.Operation == types.OpDelete {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": key}))
			continue
		}

		models = append(models, mongo.NewUpdateOneModel().SetFilter(bson.M{
			"_id": key,
		}).SetUpdate(bson.M{
			"$set": bson.M{
				"table_name":  info.TableName,
				"table_lower": strings.ToLower(info.TableName),
				"pk_value":    []byte(pk),
				"payload":     info.Payload,
				"version":     info.Version,
				"timestamp":   info.Timestamp,
				"origin":      info.Origin,
			},
		}).SetUpsert(true))
	}
	return models, nil
}

func (c *Client) findClientInfo(ctx context.Context, originID string) (*database.ClientInfo, error) {
	result := c.collection(ColClients).FindOne(ctx, bson.M{"_id": originID})

	info := database.ClientInfo{}
	if err := result.Decode(&info); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
		}
		return nil, fmt.Errorf("decode client info: %w", err)
	}
	return &info, nil
}

// getMeta reads the singleton counter document, materializing its zero
// value on first touch.
func (c *Client) getMeta(ctx context.Context) (*metaDoc, error) {
	result := c.collection(ColMeta).FindOne(ctx, bson.M{"_id": metaID})

	meta := metaDoc{}
	if err := result.Decode(&meta); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &metaDoc{ID: metaID}, nil
		}
		return nil, fmt.Errorf("decode version counter: %w", err)
	}
	return &meta, nil
}

func (c *Client) collection(
	name string,
	opts ...options.Lister[options.CollectionOptions],
) *mongo.Collection {
	return c.client.
		Database(c.config.Database).
		Collection(name, opts...)
}

func newID() string {
	return bson.NewObjectID().Hex()
}
