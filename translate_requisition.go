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
	"time"

	"github.com/pkg/errors"

	"github.com/storesync/storesync/database"
	"github.com/storesync/storesync/model"
)

const (
	LegacyTableRequisition     = "requisition"
	LegacyTableRequisitionLine = "requisition_line"

	legacyRequisitionRequest  = "request"
	legacyRequisitionResponse = "response"

	// The legacy wire measures supply coverage in days.
	daysPerMonth = 30
)

type legacyRequisitionRow struct {
	ID                 string     `json:"ID"`
	SerialNumber       int64      `json:"serial_number"`
	NameID             string     `json:"name_ID"`
	StoreID            string     `json:"store_ID"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	UserID             string     `json:"user_ID"`
	DateEntered        LegacyDate `json:"date_entered"`
	RequesterReference string     `json:"requester_reference"`
	LinkedRequisition  string     `json:"linked_requisition_id"`
	ThresholdMOS       float64    `json:"thresholdMOS"`
	DaysToSupply       int64      `json:"daysToSupply"`
	Comment            string     `json:"comment"`

	OmCreatedDatetime   LegacyDatetime `json:"om_created_datetime"`
	OmSentDatetime      LegacyDatetime `json:"om_sent_datetime"`
	OmFinalisedDatetime LegacyDatetime `json:"om_finalised_datetime"`
	OmMaxMonthsOfStock  *float64       `json:"om_max_months_of_stock"`
	OmStatus            string         `json:"om_status"`
}

// RequisitionTranslation converts between the legacy requisition table and
// local requisitions.
type RequisitionTranslation struct {
	datasource database.IDataSource
	siteID     int32
}

func NewRequisitionTranslation(datasource database.IDataSource, siteID int32) *RequisitionTranslation {
	return &RequisitionTranslation{datasource: datasource, siteID: siteID}
}

func (t *RequisitionTranslation) Table() string {
	return LegacyTableRequisition
}

func (t *RequisitionTranslation) ChangelogTables() []string {
	return []string{string(model.TableNameRequisition)}
}

func (t *RequisitionTranslation) PullDependencies() []string {
	return []string{LegacyTableName, LegacyTableStore}
}

func (t *RequisitionTranslation) TranslatePull(ctx context.Context, tx *sql.Tx, row model.SyncBufferRow) (PullResult, error) {
	if row.Action == model.SyncActionDelete {
		if err := t.datasource.DeleteRequisition(ctx, tx, row.RecordID); err != nil {
			return PullResult{}, err
		}
		return PullIntegrated(), nil
	}

	var data legacyRequisitionRow
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return PullResult{}, errors.Wrap(err, "parsing requisition record")
	}

	name, err := t.datasource.GetName(ctx, data.NameID)
	if err != nil {
		return PullResult{}, err
	}
	if name == nil {
		return PullResult{}, &ReferentialError{Table: row.TableName, RecordID: row.RecordID, Missing: data.NameID}
	}

	reqType, ok := requisitionTypeFromLegacy(data.Type)
	if !ok {
		return PullIgnored(fmt.Sprintf("unsupported requisition type %q", data.Type)), nil
	}
	reqStatus, ok := requisitionStatusFromLegacy(reqType, data.Status)
	if !ok {
		return PullIgnored(fmt.Sprintf("unsupported requisition status %q for type %q", data.Status, data.Type)), nil
	}

	if err := t.checkOwnership(ctx, row, data.StoreID); err != nil {
		return PullResult{}, err
	}

	created, sent, finalised := requisitionTimestamps(reqStatus, &data)
	if data.OmStatus != "" {
		reqStatus = model.RequisitionStatus(data.OmStatus)
	}
	maxMonths := float64(data.DaysToSupply) / daysPerMonth
	if data.OmMaxMonthsOfStock != nil {
		maxMonths = *data.OmMaxMonthsOfStock
	}

	if data.UserID != "" {
		exists, err := t.datasource.UserExists(ctx, data.UserID)
		if err != nil {
			return PullResult{}, err
		}
		if !exists {
			if err := t.datasource.InsertPlaceholderUser(ctx, tx, data.UserID); err != nil {
				return PullResult{}, err
			}
		}
	}

	req := &model.Requisition{
		ID:                  data.ID,
		RequisitionNumber:   data.SerialNumber,
		StoreID:             data.StoreID,
		NameLinkID:          data.NameID,
		UserID:              StrOrNil(data.UserID),
		Type:                reqType,
		Status:              reqStatus,
		Comment:             StrOrNil(data.Comment),
		TheirReference:      StrOrNil(data.RequesterReference),
		MaxMonthsOfStock:    maxMonths,
		MinMonthsOfStock:    data.ThresholdMOS,
		LinkedRequisitionID: StrOrNil(data.LinkedRequisition),
		CreatedDatetime:     created,
		SentDatetime:        sent,
		FinalisedDatetime:   finalised,
	}
	if err := t.datasource.UpsertRequisition(ctx, tx, req); err != nil {
		return PullResult{}, err
	}
	return PullIntegrated(), nil
}

func (t *RequisitionTranslation) checkOwnership(ctx context.Context, row model.SyncBufferRow, storeID string) error {
	store, err := t.datasource.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store == nil || store.SiteID != t.siteID {
		return nil
	}
	existing, err := t.datasource.GetRequisition(ctx, row.RecordID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &OwnershipError{Table: row.TableName, RecordID: row.RecordID}
	}
	return nil
}

func (t *RequisitionTranslation) TranslatePush(ctx context.Context, entry model.ChangelogEntry) (PushResult, error) {
	if entry.RowAction == model.RowActionDelete {
		return PushRecords(PushRecord{
			Table:    LegacyTableRequisition,
			RecordID: entry.RecordID,
			Action:   model.SyncActionDelete,
		}), nil
	}

	req, err := t.datasource.GetRequisition(ctx, entry.RecordID)
	if err != nil {
		return PushResult{}, err
	}
	if req == nil {
		return PushResult{}, errors.Errorf("requisition %s not found", entry.RecordID)
	}

	legacyStatus, ok := legacyStatusFromRequisition(req.Type, req.Status)
	if !ok {
		return PushIgnored(fmt.Sprintf("no legacy slot for requisition status %q", req.Status)), nil
	}

	created := req.CreatedDatetime
	entryDate, _ := SplitDatetime(&created)
	maxMonths := req.MaxMonthsOfStock
	data := legacyRequisitionRow{
		ID:                  req.ID,
		SerialNumber:        req.RequisitionNumber,
		NameID:              req.NameLinkID,
		StoreID:             req.StoreID,
		Type:                legacyTypeFromRequisition(req.Type),
		Status:              legacyStatus,
		UserID:              StrFromPtr(req.UserID),
		DateEntered:         entryDate,
		RequesterReference:  StrFromPtr(req.TheirReference),
		LinkedRequisition:   StrFromPtr(req.LinkedRequisitionID),
		ThresholdMOS:        req.MinMonthsOfStock,
		DaysToSupply:        int64(req.MaxMonthsOfStock * daysPerMonth),
		Comment:             StrFromPtr(req.Comment),
		OmCreatedDatetime:   NewLegacyDatetime(&created),
		OmSentDatetime:      NewLegacyDatetime(req.SentDatetime),
		OmFinalisedDatetime: NewLegacyDatetime(req.FinalisedDatetime),
		OmMaxMonthsOfStock:  &maxMonths,
		OmStatus:            string(req.Status),
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return PushResult{}, err
	}
	return PushRecords(PushRecord{
		Table:    LegacyTableRequisition,
		RecordID: req.ID,
		Action:   model.SyncActionUpsert,
		Data:     payload,
	}), nil
}

func requisitionTypeFromLegacy(legacyType string) (model.RequisitionType, bool) {
	switch legacyType {
	case legacyRequisitionRequest:
		return model.RequisitionTypeRequest, true
	case legacyRequisitionResponse:
		return model.RequisitionTypeResponse, true
	}
	// "sh", "im", "supply" and "report" requisitions stay central-only.
	return "", false
}

func requisitionStatusFromLegacy(reqType model.RequisitionType, legacyStatus string) (model.RequisitionStatus, bool) {
	switch reqType {
	case model.RequisitionTypeRequest:
		switch legacyStatus {
		case legacyStatusSuggested, legacyStatusNew:
			return model.RequisitionStatusDraft, true
		case legacyStatusConfirmed, legacyStatusFinalised:
			return model.RequisitionStatusSent, true
		}
	case model.RequisitionTypeResponse:
		switch legacyStatus {
		case legacyStatusSuggested, legacyStatusNew, legacyStatusConfirmed:
			return model.RequisitionStatusNew, true
		case legacyStatusFinalised:
			return model.RequisitionStatusFinalised, true
		}
	}
	return "", false
}

func legacyTypeFromRequisition(reqType model.RequisitionType) string {
	if reqType == model.RequisitionTypeResponse {
		return legacyRequisitionResponse
	}
	return legacyRequisitionRequest
}

func legacyStatusFromRequisition(reqType model.RequisitionType, status model.RequisitionStatus) (string, bool) {
	switch reqType {
	case model.RequisitionTypeRequest:
		switch status {
		case model.RequisitionStatusDraft:
			return legacyStatusSuggested, true
		case model.RequisitionStatusSent, model.RequisitionStatusFinalised:
			return legacyStatusFinalised, true
		}
	case model.RequisitionTypeResponse:
		switch status {
		case model.RequisitionStatusNew:
			return legacyStatusSuggested, true
		case model.RequisitionStatusFinalised:
			return legacyStatusFinalised, true
		}
	}
	return "", false
}

// requisitionTimestamps derives the lifecycle timestamps, preferring om
// fields when the record originated on a newer site.
func requisitionTimestamps(status model.RequisitionStatus, data *legacyRequisitionRow) (time.Time, *time.Time, *time.Time) {
	if data.OmCreatedDatetime.Valid {
		return data.OmCreatedDatetime.Time, data.OmSentDatetime.Ptr(), data.OmFinalisedDatetime.Ptr()
	}

	created := Datetime(data.DateEntered, 0)
	if created == nil {
		now := time.Now().UTC()
		created = &now
	}
	var sent, finalised *time.Time
	if status == model.RequisitionStatusSent || status == model.RequisitionStatusFinalised {
		sent = created
	}
	if status == model.RequisitionStatusFinalised {
		finalised = created
	}
	return *created, sent, finalised
}
