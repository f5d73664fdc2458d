/*
Copyright 2025 Storesync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storesync

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/storesync/storesync/database"
	"github.com/storesync/storesync/model"
)

type legacyStoreRow struct {
	ID               string     `json:"ID"`
	NameID           string     `json:"name_ID"`
	Code             string     `json:"code"`
	SyncIDRemoteSite int32      `json:"sync_id_remote_site"`
	CreatedDate      LegacyDate `json:"created_date"`
}

// StoreTranslation converts between the legacy store table and local stores.
type StoreTranslation struct {
	datasource database.IDataSource
}

func NewStoreTranslation(datasource database.IDataSource) *StoreTranslation {
	return &StoreTranslation{datasource: datasource}
}

func (t *StoreTranslation) Table() string {
	return LegacyTableStore
}

func (t *StoreTranslation) ChangelogTables() []string {
	return []string{string(model.TableNameStore)}
}

func (t *StoreTranslation) PullDependencies() []string {
	return []string{LegacyTableName}
}

func (t *StoreTranslation) TranslatePull(ctx context.Context, tx *sql.Tx, row model.SyncBufferRow) (PullResult, error) {
	if row.Action == model.SyncActionDelete {
		// Store rows are never deleted downstream; deactivation happens
		// centrally through the name record.
		return PullIgnored("store deletes are central-only"), nil
	}

	var data legacyStoreRow
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return PullResult{}, errors.Wrap(err, "parsing store record")
	}

	name, err := t.datasource.GetName(ctx, data.NameID)
	if err != nil {
		return PullResult{}, err
	}
	if name == nil {
		return PullResult{}, &ReferentialError{Table: row.TableName, RecordID: row.RecordID, Missing: data.NameID}
	}

	store := &model.Store{
		ID:          data.ID,
		NameID:      data.NameID,
		Code:        data.Code,
		SiteID:      data.SyncIDRemoteSite,
		CreatedDate: Datetime(data.CreatedDate, 0),
	}
	if err := t.datasource.UpsertStore(ctx, tx, store); err != nil {
		return PullResult{}, err
	}
	return PullIntegrated(), nil
}

func (t *StoreTranslation) TranslatePush(ctx context.Context, entry model.ChangelogEntry) (PushResult, error) {
	// Store assignment is central configuration; sites never author it.
	return PushIgnored("store records are central-only"), nil
}
