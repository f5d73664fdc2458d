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

type legacyRequisitionLineRow struct {
	ID             string  `json:"ID"`
	RequisitionID  string  `json:"requisition_ID"`
	ItemID         string  `json:"item_ID"`
	StockOrder     float64 `json:"Cust_stock_order"`
	CalculatedQty  float64 `json:"Cust_stock_calculated"`
	ActualQuantity float64 `json:"actual_quan"`
	StockOnHand    float64 `json:"stock_on_hand"`
	Comment        string  `json:"comment"`
}

// RequisitionLineTranslation converts between the legacy requisition_line
// table and local requisition lines.
type RequisitionLineTranslation struct {
	datasource database.IDataSource
}

func NewRequisitionLineTranslation(datasource database.IDataSource) *RequisitionLineTranslation {
	return &RequisitionLineTranslation{datasource: datasource}
}

func (t *RequisitionLineTranslation) Table() string {
	return LegacyTableRequisitionLine
}

func (t *RequisitionLineTranslation) ChangelogTables() []string {
	return []string{string(model.TableNameRequisitionLine)}
}

func (t *RequisitionLineTranslation) PullDependencies() []string {
	return []string{LegacyTableRequisition}
}

func (t *RequisitionLineTranslation) TranslatePull(ctx context.Context, tx *sql.Tx, row model.SyncBufferRow) (PullResult, error) {
	if row.Action == model.SyncActionDelete {
		if err := t.datasource.DeleteRequisitionLine(ctx, tx, row.RecordID); err != nil {
			return PullResult{}, err
		}
		return PullIntegrated(), nil
	}

	var data legacyRequisitionLineRow
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return PullResult{}, errors.Wrap(err, "parsing requisition_line record")
	}

	parent, err := t.datasource.GetRequisition(ctx, data.RequisitionID)
	if err != nil {
		return PullResult{}, err
	}
	if parent == nil {
		return PullResult{}, &ReferentialError{Table: row.TableName, RecordID: row.RecordID, Missing: data.RequisitionID}
	}

	line := &model.RequisitionLine{
		ID:                   data.ID,
		RequisitionID:        data.RequisitionID,
		ItemID:               data.ItemID,
		RequestedQuantity:    data.StockOrder,
		SuggestedQuantity:    data.CalculatedQty,
		SupplyQuantity:       data.ActualQuantity,
		AvailableStockOnHand: data.StockOnHand,
		Comment:              StrOrNil(data.Comment),
	}
	if err := t.datasource.UpsertRequisitionLine(ctx, tx, line); err != nil {
		return PullResult{}, err
	}
	return PullIntegrated(), nil
}

func (t *RequisitionLineTranslation) TranslatePush(ctx context.Context, entry model.ChangelogEntry) (PushResult, error) {
	if entry.RowAction == model.RowActionDelete {
		return PushRecords(PushRecord{
			Table:    LegacyTableRequisitionLine,
			RecordID: entry.RecordID,
			Action:   model.SyncActionDelete,
		}), nil
	}

	line, err := t.datasource.GetRequisitionLine(ctx, entry.RecordID)
	if err != nil {
		return PushResult{}, err
	}
	if line == nil {
		return PushResult{}, errors.Errorf("requisition line %s not found", entry.RecordID)
	}

	data := legacyRequisitionLineRow{
		ID:             line.ID,
		RequisitionID:  line.RequisitionID,
		ItemID:         line.ItemID,
		StockOrder:     line.RequestedQuantity,
		CalculatedQty:  line.SuggestedQuantity,
		ActualQuantity: line.SupplyQuantity,
		StockOnHand:    line.AvailableStockOnHand,
		Comment:        StrFromPtr(line.Comment),
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return PushResult{}, err
	}
	return PushRecords(PushRecord{
		Table:    LegacyTableRequisitionLine,
		RecordID: line.ID,
		Action:   model.SyncActionUpsert,
		Data:     payload,
	}), nil
}
