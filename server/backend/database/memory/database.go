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

// Package memory implements the database interface using an in-memory
// database, for tests and standalone deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	gotime "time"

	"github.com/hashicorp/go-memdb"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database"
)

// metaID is the fixed key of the singleton counter record.
const metaID = "meta"

// metaRecord carries the log-wide counters: the version counter and the
// purge boundary.
type metaRecord struct {
	ID            string
	LastVersion   int64
	PurgedThrough int64
}

// DB is an in-memory database for testing or temporarily.
type DB struct {
	db *memdb.MemDB
}

// New returns a new in-memory database.
func New() (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &DB{
		db: memDB,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return nil
}

// EnsureClient finds the client of the given origin, registering or
// reactivating it if needed.
func (d *DB) EnsureClient(_ context.Context, originID string) (*database.ClientInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	now := gotime.Now()

	raw, err := txn.First(tblClients, "id", originID)
	if err != nil {
		return nil, fmt.Errorf("find client %s: %w", originID, err)
	}

	var info *database.ClientInfo
	if raw == nil {
		info = &database.ClientInfo{
			OriginID:  originID,
			Status:    types.ClientActivated,
			CreatedAt: now,
		}
		info.Activate(now)
	} else {
		info = raw.(*database.ClientInfo).DeepCopy()
		info.Activate(now)
	}

	if err := txn.Insert(tblClients, info); err != nil {
		return nil, fmt.Errorf("ensure client %s: %w", originID, err)
	}
	txn.Commit()
	return info.DeepCopy(), nil
}

// FindClient finds the client of the given origin.
func (d *DB) FindClient(_ context.Context, originID string) (*database.ClientInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblClients, "id", originID)
	if err != nil {
		return nil, fmt.Errorf("find client %s: %w", originID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
	}
	return raw.(*database.ClientInfo).DeepCopy(), nil
}

// ListClients returns the whole client registry.
func (d *DB) ListClients(_ context.Context) ([]*database.ClientInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iterator, err := txn.Get(tblClients, "id")
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	var infos []*database.ClientInfo
	for raw := iterator.Next(); raw != nil; raw = iterator.Next() {
		infos = append(infos, raw.(*database.ClientInfo).DeepCopy())
	}
	return infos, nil
}

// UpdateCheckpoint forwards the client's cursors, refreshes its last-synced
// time, and lifts the resync flag once the cursor is back inside retained
// history.
func (d *DB) UpdateCheckpoint(
	_ context.Context,
	originID string,
	cp types.Checkpoint,
) (*database.ClientInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblClients, "id", originID)
	if err != nil {
		return nil, fmt.Errorf("find client %s: %w", originID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
	}

	info := raw.(*database.ClientInfo).DeepCopy()
	info.ForwardCheckpoint(cp, gotime.Now())

	if info.ResyncRequired {
		oldest, err := d.oldestAvailable(txn)
		if err != nil {
			return nil, err
		}
		if info.ServerVersion >= oldest-1 {
			info.ResyncRequired = false
		}
	}

	if err := txn.Insert(tblClients, info); err != nil {
		return nil, fmt.Errorf("update checkpoint of %s: %w", originID, err)
	}
	txn.Commit()
	return info.DeepCopy(), nil
}

// DeactivateClient deactivates the client of the given origin.
func (d *DB) DeactivateClient(_ context.Context, originID string) (*database.ClientInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblClients, "id", originID)
	if err != nil {
		return nil, fmt.Errorf("find client %s: %w", originID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
	}

	info := raw.(*database.ClientInfo).DeepCopy()
	info.Deactivate(gotime.Now())

	if err := txn.Insert(tblClients, info); err != nil {
		return nil, fmt.Errorf("deactivate client %s: %w", originID, err)
	}
	txn.Commit()
	return info.DeepCopy(), nil
}

// MarkResyncRequired flags that the client's next pull cannot be served
// incrementally.
func (d *DB) MarkResyncRequired(_ context.Context, originID string) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblClients, "id", originID)
	if err != nil {
		return fmt.Errorf("find client %s: %w", originID, err)
	}
	if raw == nil {
		return fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
	}

	info := raw.(*database.ClientInfo).DeepCopy()
	info.ResyncRequired = true

	if err := txn.Insert(tblClients, info); err != nil {
		return fmt.Errorf("mark resync of %s: %w", originID, err)
	}
	txn.Commit()
	return nil
}

// AppendChanges appends the client's pushed entries to the change log,
// assigning hub versions, and folds them into the materialized rows.
func (d *DB) AppendChanges(
	_ context.Context,
	originID string,
	entries []types.SyncLogEntry,
) ([]*database.ChangeInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblClients, "id", originID)
	if err != nil {
		return nil, fmt.Errorf("find client %s: %w", originID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("find client %s: %w", originID, types.ErrClientNotFound)
	}
	clientInfo := raw.(*database.ClientInfo).DeepCopy()
	if err := clientInfo.EnsureActivated(); err != nil {
		return nil, err
	}

	meta, err := d.getMeta(txn)
	if err != nil {
		return nil, err
	}

	now := gotime.Now()
	lastLocal := clientInfo.PushedVersion
	var appended []*database.ChangeInfo

	for _, entry := range entries {
		// Entries at or below the watermark are replays of an earlier,
		// possibly half-acknowledged push.
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

		if err := txn.Insert(tblChanges, info); err != nil {
			return nil, fmt.Errorf("append change of %s: %w", originID, err)
		}
		if err := d.applyToRows(txn, info); err != nil {
			return nil, err
		}

		if entry.Version > lastLocal {
			lastLocal = entry.Version
		}
		appended = append(appended, info.DeepCopy())
	}

	clientInfo.ForwardCheckpoint(
		types.NewCheckpoint(clientInfo.ServerVersion, lastLocal),
		now,
	)
	if err := txn.Insert(tblClients, clientInfo); err != nil {
		return nil, fmt.Errorf("update client %s: %w", originID, err)
	}
	if err := txn.Insert(tblMeta, meta); err != nil {
		return nil, fmt.Errorf("update version counter: %w", err)
	}

	txn.Commit()
	return appended, nil
}

// FindChangesSince returns up to limit changes with version greater than
// fromVersion in ascending version order.
func (d *DB) FindChangesSince(
	_ context.Context,
	fromVersion int64,
	limit int,
) ([]*database.ChangeInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iterator, err := txn.LowerBound(tblChanges, "version", fromVersion+1)
	if err != nil {
		return nil, fmt.Errorf("find changes after %d: %w", fromVersion, err)
	}

	var infos []*database.ChangeInfo
	for raw := iterator.Next(); raw != nil; raw = iterator.Next() {
		infos = append(infos, raw.(*database.ChangeInfo).DeepCopy())
		if limit > 0 && len(infos) == limit {
			break
		}
	}
	return infos, nil
}

// MaxVersion returns the highest version ever assigned in the change log.
func (d *DB) MaxVersion(_ context.Context) (int64, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	meta, err := d.getMeta(txn)
	if err != nil {
		return 0, err
	}
	return meta.LastVersion, nil
}

// OldestAvailableVersion returns the lowest version the log still retains,
// or purgedThrough+1 when the log is empty.
func (d *DB) OldestAvailableVersion(_ context.Context) (int64, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	return d.oldestAvailable(txn)
}

// PurgeChanges removes log entries with version at or below through.
func (d *DB) PurgeChanges(_ context.Context, through int64) (int64, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	iterator, err := txn.LowerBound(tblChanges, "version", int64(0))
	if err != nil {
		return 0, fmt.Errorf("purge changes through %d: %w", through, err)
	}

	var purgeable []*database.ChangeInfo
	for raw := iterator.Next(); raw != nil; raw = iterator.Next() {
		info := raw.(*database.ChangeInfo)
		if info.Version > through {
			break
		}
		purgeable = append(purgeable, info)
	}
	for _, info := range purgeable {
		if err := txn.Delete(tblChanges, info); err != nil {
			return 0, fmt.Errorf("purge change %d: %w", info.Version, err)
		}
	}

	meta, err := d.getMeta(txn)
	if err != nil {
		return 0, err
	}
	cut := through
	if cut > meta.LastVersion {
		cut = meta.LastVersion
	}
	if cut > meta.PurgedThrough {
		meta.PurgedThrough = cut
		if err := txn.Insert(tblMeta, meta); err != nil {
			return 0, fmt.Errorf("update purge boundary: %w", err)
		}
	}

	txn.Commit()
	return int64(len(purgeable)), nil
}

// ListRows returns the materialized rows of the given tables, or of all
// tables when tables is empty, ordered by table then primary key.
func (d *DB) ListRows(_ context.Context, tables []string) ([]*database.RowInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	var infos []*database.RowInfo
	if len(tables) == 0 {
		iterator, err := txn.Get(tblRows, "id")
		if err != nil {
			return nil, fmt.Errorf("list rows: %w", err)
		}
		for raw := iterator.Next(); raw != nil; raw = iterator.Next() {
			infos = append(infos, raw.(*database.RowInfo).DeepCopy())
		}
		return infos, nil
	}

	lowered := make([]string, 0, len(tables))
	seen := map[string]bool{}
	for _, name := range tables {
		name = strings.ToLower(name)
		if !seen[name] {
			seen[name] = true
			lowered = append(lowered, name)
		}
	}
	sort.Strings(lowered)

	for _, name := range lowered {
		iterator, err := txn.Get(tblRows, "table", name)
		if err != nil {
			return nil, fmt.Errorf("list rows of %s: %w", name, err)
		}
		for raw := iterator.Next(); raw != nil; raw = iterator.Next() {
			infos = append(infos, raw.(*database.RowInfo).DeepCopy())
		}
	}
	return infos, nil
}

// applyToRows folds one appended change into the materialized rows.
func (d *DB) applyToRows(txn *memdb.Txn, info *database.ChangeInfo) error {
	entry := info.ToEntry()
	pk, err := entry.CanonicalPk()
	if err != nil {
		return err
	}
	key := database.RowKey(info.TableName, pk)

	if types.Operation(info.Operation) == types.OpDelete {
		raw, err := txn.First(tblRows, "id", key)
		if err != nil {
			return fmt.Errorf("find row %s: %w", key, err)
		}
		if raw != nil {
			if err := txn.Delete(tblRows, raw); err != nil {
				return fmt.Errorf("delete row %s: %w", key, err)
			}
		}
		return nil
	}

	if err := txn.Insert(tblRows, &database.RowInfo{
		ID:        key,
		TableName: info.TableName,
		PkValue:   []byte(pk),
		Payload:   bytes.Clone(info.Payload),
		Version:   info.Version,
		Timestamp: info.Timestamp,
		Origin:    info.Origin,
	}); err != nil {
		return fmt.Errorf("upsert row %s: %w", key, err)
	}
	return nil
}

// getMeta reads the singleton counter record, materializing its zero value
// on first touch.
func (d *DB) getMeta(txn *memdb.Txn) (*metaRecord, error) {
	raw, err := txn.First(tblMeta, "id", metaID)
	if err != nil {
		return nil, fmt.Errorf("find version counter: %w", err)
	}
	if raw == nil {
		return &metaRecord{ID: metaID}, nil
	}
	meta := *raw.(*metaRecord)
	return &meta, nil
}

// oldestAvailable returns the lowest retained version within the given txn.
func (d *DB) oldestAvailable(txn *memdb.Txn) (int64, error) {
	iterator, err := txn.LowerBound(tblChanges, "version", int64(0))
	if err != nil {
		return 0, fmt.Errorf("find oldest change: %w", err)
	}
	if raw := iterator.Next(); raw != nil {
		return raw.(*database.ChangeInfo).Version, nil
	}

	meta, err := d.getMeta(txn)
	if err != nil {
		return 0, err
	}
	return meta.PurgedThrough + 1, nil
}

func newID() string {
	return bson.NewObjectID().Hex()
}
