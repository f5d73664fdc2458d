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

const (
	LegacyTableName  = "name"
	LegacyTableStore = "store"
)

type legacyNameRow struct {
	ID       string `json:"ID"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Customer bool   `json:"customer"`
	Supplier bool   `json:"supplier"`
	Type     string `json:"type"`
}

// NameTranslation converts between the legacy name table and local parties.
// Names sit at the root of the dependency order; every document references
// one.
type NameTranslation struct {
	datasource database.IDataSource
}

func NewNameTranslation(datasource database.IDataSource) *NameTranslation {
	return &NameTranslation{datasource: datasource}
}

func (t *NameTranslation) Table() string {
	return LegacyTableName
}

func (t *NameTranslation) ChangelogTables() []string {
	return []string{string(model.TableNameName)}
}

func (t *NameTranslation) PullDependencies() []string {
	return nil
}

func (t *NameTranslation) TranslatePull(ctx context.Context, tx *sql.Tx, row model.SyncBufferRow) (PullResult, error) {
	if row.Action == model.SyncActionDelete {
		if err := t.datasource.DeleteName(ctx, tx, row.RecordID); err != nil {
			return PullResult{}, err
		}
		return PullIntegrated(), nil
	}

	var data legacyNameRow
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return PullResult{}, errors.Wrap(err, "parsing name record")
	}

	name := &model.Name{
		ID:         data.ID,
		Code:       data.Code,
		Name:       data.Name,
		IsCustomer: data.Customer,
		IsSupplier: data.Supplier,
		IsStore:    data.Type == "store",
	}
	if err := t.datasource.UpsertName(ctx, tx, name); err != nil {
		return PullResult{}, err
	}
	return PullIntegrated(), nil
}

func (t *NameTranslation) TranslatePush(ctx context.Context, entry model.ChangelogEntry) (PushResult, error) {
	// Parties are centrally owned reference data; sites never author them.
	return PushIgnored("name records are central-only"), nil
}
