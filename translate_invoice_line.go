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
	"fmt"

	"github.com/pkg/errors"

	"github.com/storesync/storesync/database"
	"github.com/storesync/storesync/model"
)

// Legacy trans_line type codes.
const (
	legacyLineStockIn     = "stock_in"
	legacyLineStockOut    = "stock_out"
	legacyLinePlaceholder = "placeholder"
	legacyLineNonStock    = "non_stock"
)

type legacyTransLineRow struct {
	ID            string     `json:"ID"`
	TransactionID string     `json:"transaction_ID"`
	ItemID        string     `json:"item_ID"`
	ItemName      string     `json:"item_name"`
	ItemCode      string     `json:"item_code"`
	Type          string     `json:"type"`
	Batch         string     `json:"batch"`
	ExpiryDate    LegacyDate `json:"expiry_date"`
	PackSize      float64    `json:"pack_size"`
	Quantity      float64    `json:"quantity"`
	CostPrice     float64    `json:"cost_price"`
	SellPrice     float64    `json:"sell_price"`
	LineTotal     float64    `json:"line_total"`
	Note          string     `json:"note"`
}

// InvoiceLineTranslation converts between the legacy trans_line table and
// local invoice lines.
type InvoiceLineTranslation struct {
	datasource database.IDataSource
}

func NewInvoiceLineTranslation(datasource database.IDataSource) *InvoiceLineTranslation {
	return &InvoiceLineTranslation{datasource: datasource}
}

func (t *InvoiceLineTranslation) Table() string {
	return LegacyTableTransLine
}

func (t *InvoiceLineTranslation) ChangelogTables() []string {
	return []string{string(model.TableNameInvoiceLine)}
}

func (t *InvoiceLineTranslation) PullDependencies() []string {
	return []string{LegacyTableTransact}
}

func (t *InvoiceLineTranslation) TranslatePull(ctx context.Context, tx *sql.Tx, row model.SyncBufferRow) (PullResult, error) {
	if row.Action == model.SyncActionDelete {
		if err := t.datasource.DeleteInvoiceLine(ctx, tx, row.RecordID); err != nil {
			return PullResult{}, err
		}
		return PullIntegrated(), nil
	}

	var data legacyTransLineRow
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return PullResult{}, errors.Wrap(err, "parsing trans_line record")
	}

	lineType, ok := lineTypeFromLegacy(data.Type)
	if !ok {
		return PullIgnored(fmt.Sprintf("unsupported trans_line type %q", data.Type)), nil
	}

	parent, err := t.datasource.GetInvoice(ctx, data.TransactionID)
	if err != nil {
		return PullResult{}, err
	}
	if parent == nil {
		return PullResult{}, &ReferentialError{Table: row.TableName, RecordID: row.RecordID, Missing: data.TransactionID}
	}

	line := &model.InvoiceLine{
		ID:               data.ID,
		InvoiceID:        data.TransactionID,
		ItemID:           data.ItemID,
		ItemName:         data.ItemName,
		ItemCode:         data.ItemCode,
		Batch:            StrOrNil(data.Batch),
		PackSize:         data.PackSize,
		NumberOfPacks:    data.Quantity,
		CostPricePerPack: data.CostPrice,
		SellPricePerPack: data.SellPrice,
		TotalBeforeTax:   data.LineTotal,
		Type:             lineType,
		Note:             StrOrNil(data.Note),
	}
	if data.ExpiryDate.Valid {
		expiry := data.ExpiryDate.Time
		line.ExpiryDate = &expiry
	}
	if err := t.datasource.UpsertInvoiceLine(ctx, tx, line); err != nil {
		return PullResult{}, err
	}
	return PullIntegrated(), nil
}

func (t *InvoiceLineTranslation) TranslatePush(ctx context.Context, entry model.ChangelogEntry) (PushResult, error) {
	if entry.RowAction == model.RowActionDelete {
		return PushRecords(PushRecord{
			Table:    LegacyTableTransLine,
			RecordID: entry.RecordID,
			Action:   model.SyncActionDelete,
		}), nil
	}

	line, err := t.datasource.GetInvoiceLine(ctx, entry.RecordID)
	if err != nil {
		return PushResult{}, err
	}
	if line == nil {
		return PushResult{}, errors.Errorf("invoice line %s not found", entry.RecordID)
	}

	legacyType, ok := legacyTypeFromLine(line.Type)
	if !ok {
		return PushIgnored(fmt.Sprintf("no legacy slot for line type %q", line.Type)), nil
	}

	data := legacyTransLineRow{
		ID:            line.ID,
		TransactionID: line.InvoiceID,
		ItemID:        line.ItemID,
		ItemName:      line.ItemName,
		ItemCode:      line.ItemCode,
		Type:          legacyType,
		Batch:         StrFromPtr(line.Batch),
		PackSize:      line.PackSize,
		Quantity:      line.NumberOfPacks,
		CostPrice:     line.CostPricePerPack,
		SellPrice:     line.SellPricePerPack,
		LineTotal:     line.TotalBeforeTax,
		Note:          StrFromPtr(line.Note),
	}
	if line.ExpiryDate != nil {
		data.ExpiryDate = NewLegacyDate(*line.ExpiryDate)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return PushResult{}, err
	}
	return PushRecords(PushRecord{
		Table:    LegacyTableTransLine,
		RecordID: line.ID,
		Action:   model.SyncActionUpsert,
		Data:     payload,
	}), nil
}

func lineTypeFromLegacy(legacyType string) (model.InvoiceLineType, bool) {
	switch legacyType {
	case legacyLineStockIn:
		return model.InvoiceLineTypeStockIn, true
	case legacyLineStockOut:
		return model.InvoiceLineTypeStockOut, true
	case legacyLinePlaceholder:
		return model.InvoiceLineTypeUnallocatedStock, true
	case legacyLineNonStock:
		return model.InvoiceLineTypeService, true
	}
	return "", false
}

func legacyTypeFromLine(lineType model.InvoiceLineType) (string, bool) {
	switch lineType {
	case model.InvoiceLineTypeStockIn:
		return legacyLineStockIn, true
	case model.InvoiceLineTypeStockOut:
		return legacyLineStockOut, true
	case model.InvoiceLineTypeUnallocatedStock:
		return legacyLinePlaceholder, true
	case model.InvoiceLineTypeService:
		return legacyLineNonStock, true
	}
	return "", false
}
