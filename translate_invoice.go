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
	LegacyTableTransact  = "transact"
	LegacyTableTransLine = "trans_line"

	// The central system books stocktake adjustments against a well known
	// virtual party with this code.
	inventoryAdjustmentNameCode = "invad"
)

// Legacy transact type and status codes. Codes outside these sets ("cc",
// "bu", "rc", "ps", web statuses) have no domain representation and are
// ignored on pull.
const (
	legacyTransactSupplierInvoice = "si"
	legacyTransactCustomerInvoice = "ci"
	legacyTransactSupplierCredit  = "sc"
	legacyTransactRepack          = "sr"

	legacyStatusNew       = "nw"
	legacyStatusSuggested = "sg"
	legacyStatusConfirmed = "cn"
	legacyStatusFinalised = "fn"

	legacyModeDispensary = "dispensary"
)

// legacyTransactRow is the legacy wire shape of an invoice. The om_* fields
// exist only for records that originated on a newer site and override the
// legacy-derived values when present.
type legacyTransactRow struct {
	ID                  string     `json:"ID"`
	NameID              string     `json:"name_ID"`
	StoreID             string     `json:"store_ID"`
	InvoiceNum          int64      `json:"invoice_num"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	UserID              string     `json:"user_ID"`
	Hold                bool       `json:"hold"`
	Comment             string     `json:"comment"`
	TheirRef            string     `json:"their_ref"`
	CurrencyID          string     `json:"currency_ID"`
	CurrencyRate        float64    `json:"currency_rate"`
	RequisitionID       string     `json:"requisition_ID"`
	LinkedTransactionID string     `json:"linked_transaction_id"`
	EntryDate           LegacyDate `json:"entry_date"`
	EntryTime           LegacyTime `json:"entry_time"`
	ShipDate            LegacyDate `json:"ship_date"`
	ArrivalDateActual   LegacyDate `json:"arrival_date_actual"`
	ConfirmDate         LegacyDate `json:"confirm_date"`
	ConfirmTime         LegacyTime `json:"confirm_time"`
	Mode                string     `json:"mode"`
	Tax                 *float64   `json:"tax"`

	OmCreatedDatetime   LegacyDatetime `json:"om_created_datetime"`
	OmAllocatedDatetime LegacyDatetime `json:"om_allocated_datetime"`
	OmPickedDatetime    LegacyDatetime `json:"om_picked_datetime"`
	OmShippedDatetime   LegacyDatetime `json:"om_shipped_datetime"`
	OmDeliveredDatetime LegacyDatetime `json:"om_delivered_datetime"`
	OmVerifiedDatetime  LegacyDatetime `json:"om_verified_datetime"`
	OmStatus            string         `json:"om_status"`
	OmType              string         `json:"om_type"`
	OmColour            string         `json:"om_colour"`
	OmTransportRef      string         `json:"om_transport_reference"`
}

// InvoiceTranslation converts between the legacy transact table and local
// invoices.
type InvoiceTranslation struct {
	datasource database.IDataSource
	siteID     int32
}

func NewInvoiceTranslation(datasource database.IDataSource, siteID int32) *InvoiceTranslation {
	return &InvoiceTranslation{datasource: datasource, siteID: siteID}
}

func (t *InvoiceTranslation) Table() string {
	return LegacyTableTransact
}

func (t *InvoiceTranslation) ChangelogTables() []string {
	return []string{string(model.TableNameInvoice)}
}

func (t *InvoiceTranslation) PullDependencies() []string {
	return []string{LegacyTableName, LegacyTableStore}
}

func (t *InvoiceTranslation) TranslatePull(ctx context.Context, tx *sql.Tx, row model.SyncBufferRow) (PullResult, error) {
	if row.Action == model.SyncActionDelete {
		if err := t.datasource.DeleteInvoice(ctx, tx, row.RecordID); err != nil {
			return PullResult{}, err
		}
		return PullIntegrated(), nil
	}

	var data legacyTransactRow
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return PullResult{}, errors.Wrap(err, "parsing transact record")
	}
	sanitizeTransactRow(&data)

	name, err := t.datasource.GetName(ctx, data.NameID)
	if err != nil {
		return PullResult{}, err
	}
	if name == nil {
		return PullResult{}, &ReferentialError{Table: row.TableName, RecordID: row.RecordID, Missing: data.NameID}
	}

	// A party that is itself a store makes this invoice one half of a
	// cross store transfer; the status mapping differs because the far
	// side has already acted on the document.
	nameStore, err := t.datasource.GetStoreByNameID(ctx, data.NameID)
	if err != nil {
		return PullResult{}, err
	}
	isTransfer := nameStore != nil

	invoiceType, ok := invoiceTypeFromLegacy(&data, name)
	if !ok {
		return PullIgnored(fmt.Sprintf("unsupported transact type %q in %q mode", data.Type, data.Mode)), nil
	}
	invoiceStatus, ok := invoiceStatusFromLegacy(invoiceType, data.Status, isTransfer)
	if !ok {
		return PullIgnored(fmt.Sprintf("unsupported transact status %q for type %q", data.Status, data.Type)), nil
	}

	if err := t.checkOwnership(ctx, row, data.StoreID); err != nil {
		return PullResult{}, err
	}

	mapping := mapLegacyTimestamps(invoiceType, &data)
	if data.OmType != "" {
		invoiceType = model.InvoiceType(data.OmType)
	}
	if data.OmStatus != "" {
		invoiceStatus = model.InvoiceStatus(data.OmStatus)
	}

	if data.UserID != "" {
		if err := t.insertUserPlaceholder(ctx, tx, data.UserID); err != nil {
			return PullResult{}, err
		}
	}

	var nameStoreID *string
	if nameStore != nil {
		nameStoreID = &nameStore.ID
	}

	inv := &model.Invoice{
		ID:                 data.ID,
		UserID:             StrOrNil(data.UserID),
		StoreID:            data.StoreID,
		NameLinkID:         data.NameID,
		NameStoreID:        nameStoreID,
		InvoiceNumber:      data.InvoiceNum,
		Type:               invoiceType,
		Status:             invoiceStatus,
		OnHold:             data.Hold,
		Comment:            StrOrNil(data.Comment),
		TheirReference:     StrOrNil(data.TheirRef),
		Colour:             mapping.colour,
		Tax:                data.Tax,
		CurrencyID:         StrOrNil(data.CurrencyID),
		CurrencyRate:       data.CurrencyRate,
		RequisitionID:      StrOrNil(data.RequisitionID),
		LinkedInvoiceID:    StrOrNil(data.LinkedTransactionID),
		TransportReference: StrOrNil(data.OmTransportRef),
		CreatedDatetime:    mapping.created,
		AllocatedDatetime:  mapping.allocated,
		PickedDatetime:     mapping.picked,
		ShippedDatetime:    mapping.shipped,
		DeliveredDatetime:  mapping.delivered,
		VerifiedDatetime:   mapping.verified,
		BackdatedDatetime:  mapping.backdated,
	}
	if err := t.datasource.UpsertInvoice(ctx, tx, inv); err != nil {
		return PullResult{}, err
	}
	return PullIntegrated(), nil
}

func (t *InvoiceTranslation) checkOwnership(ctx context.Context, row model.SyncBufferRow, storeID string) error {
	store, err := t.datasource.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store == nil || store.SiteID != t.siteID {
		return nil
	}
	existing, err := t.datasource.GetInvoice(ctx, row.RecordID)
	if err != nil {
		return err
	}
	// First insert wins for site-owned records.
	if existing != nil {
		return &OwnershipError{Table: row.TableName, RecordID: row.RecordID}
	}
	return nil
}

func (t *InvoiceTranslation) insertUserPlaceholder(ctx context.Context, tx *sql.Tx, userID string) error {
	exists, err := t.datasource.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return t.datasource.InsertPlaceholderUser(ctx, tx, userID)
}

func (t *InvoiceTranslation) TranslatePush(ctx context.Context, entry model.ChangelogEntry) (PushResult, error) {
	if entry.RowAction == model.RowActionDelete {
		return PushRecords(PushRecord{
			Table:    LegacyTableTransact,
			RecordID: entry.RecordID,
			Action:   model.SyncActionDelete,
		}), nil
	}

	inv, err := t.datasource.GetInvoice(ctx, entry.RecordID)
	if err != nil {
		return PushResult{}, err
	}
	if inv == nil {
		return PushResult{}, errors.Errorf("invoice %s not found", entry.RecordID)
	}

	legacyType, ok := legacyTypeFromInvoice(inv.Type)
	if !ok {
		return PushIgnored(fmt.Sprintf("no legacy slot for invoice type %q", inv.Type)), nil
	}
	legacyStatus, ok := legacyStatusFromInvoice(inv.Type, inv.Status)
	if !ok {
		return PushIgnored(fmt.Sprintf("no legacy slot for invoice status %q", inv.Status)), nil
	}

	entryDate, entryTime := SplitDatetime(&inv.CreatedDatetime)
	confirmDate, confirmTime := SplitDatetime(legacyConfirmDatetime(inv))
	shipDate, _ := SplitDatetime(inv.ShippedDatetime)
	arrivalDate, _ := SplitDatetime(inv.DeliveredDatetime)

	mode := "store"
	if inv.Type == model.InvoiceTypePrescription {
		mode = legacyModeDispensary
	}

	created := inv.CreatedDatetime
	data := legacyTransactRow{
		ID:                  inv.ID,
		NameID:              inv.NameLinkID,
		StoreID:             inv.StoreID,
		InvoiceNum:          inv.InvoiceNumber,
		Type:                legacyType,
		Status:              legacyStatus,
		UserID:              StrFromPtr(inv.UserID),
		Hold:                inv.OnHold,
		Comment:             StrFromPtr(inv.Comment),
		TheirRef:            StrFromPtr(inv.TheirReference),
		CurrencyID:          StrFromPtr(inv.CurrencyID),
		CurrencyRate:        inv.CurrencyRate,
		RequisitionID:       StrFromPtr(inv.RequisitionID),
		LinkedTransactionID: StrFromPtr(inv.LinkedInvoiceID),
		EntryDate:           entryDate,
		EntryTime:           entryTime,
		ShipDate:            shipDate,
		ArrivalDateActual:   arrivalDate,
		ConfirmDate:         confirmDate,
		ConfirmTime:         confirmTime,
		Mode:                mode,
		Tax:                 inv.Tax,
		OmCreatedDatetime:   NewLegacyDatetime(&created),
		OmAllocatedDatetime: NewLegacyDatetime(inv.AllocatedDatetime),
		OmPickedDatetime:    NewLegacyDatetime(inv.PickedDatetime),
		OmShippedDatetime:   NewLegacyDatetime(inv.ShippedDatetime),
		OmDeliveredDatetime: NewLegacyDatetime(inv.DeliveredDatetime),
		OmVerifiedDatetime:  NewLegacyDatetime(inv.VerifiedDatetime),
		OmStatus:            string(inv.Status),
		OmType:              string(inv.Type),
		OmColour:            StrFromPtr(inv.Colour),
		OmTransportRef:      StrFromPtr(inv.TransportReference),
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return PushResult{}, err
	}
	return PushRecords(PushRecord{
		Table:    LegacyTableTransact,
		RecordID: inv.ID,
		Action:   model.SyncActionUpsert,
		Data:     payload,
	}), nil
}

// sanitizeTransactRow strips om_* override fields when the legacy type and
// the om_type encode contradictory directions. The central server is known
// to relay transfers with mistranslated om fields; the legacy fields are the
// trustworthy ones in that case.
func sanitizeTransactRow(data *legacyTransactRow) {
	if data.OmType == "" {
		return
	}
	omInbound := model.InvoiceType(data.OmType) == model.InvoiceTypeInboundShipment
	omOutbound := model.InvoiceType(data.OmType) == model.InvoiceTypeOutboundShipment ||
		model.InvoiceType(data.OmType) == model.InvoiceTypePrescription
	contradictory := (data.Type == legacyTransactSupplierInvoice && omOutbound) ||
		(data.Type == legacyTransactCustomerInvoice && omInbound)
	if !contradictory {
		return
	}
	data.OmType = ""
	data.OmStatus = ""
	data.OmColour = ""
	data.OmCreatedDatetime = LegacyDatetime{}
	data.OmAllocatedDatetime = LegacyDatetime{}
	data.OmPickedDatetime = LegacyDatetime{}
	data.OmShippedDatetime = LegacyDatetime{}
	data.OmDeliveredDatetime = LegacyDatetime{}
	data.OmVerifiedDatetime = LegacyDatetime{}
}

func invoiceTypeFromLegacy(data *legacyTransactRow, name *model.Name) (model.InvoiceType, bool) {
	if name.Code == inventoryAdjustmentNameCode {
		switch data.Type {
		case legacyTransactSupplierInvoice:
			return model.InvoiceTypeInventoryAddition, true
		case legacyTransactSupplierCredit:
			return model.InvoiceTypeInventoryReduction, true
		}
		return "", false
	}
	if data.Mode == legacyModeDispensary {
		if data.Type == legacyTransactCustomerInvoice {
			return model.InvoiceTypePrescription, true
		}
		return "", false
	}
	switch data.Type {
	case legacyTransactSupplierInvoice:
		return model.InvoiceTypeInboundShipment, true
	case legacyTransactCustomerInvoice:
		return model.InvoiceTypeOutboundShipment, true
	case legacyTransactRepack:
		return model.InvoiceTypeRepack, true
	}
	return "", false
}

func invoiceStatusFromLegacy(invoiceType model.InvoiceType, legacyStatus string, isTransfer bool) (model.InvoiceStatus, bool) {
	switch invoiceType {
	case model.InvoiceTypeOutboundShipment:
		switch legacyStatus {
		case legacyStatusNew, legacyStatusSuggested:
			return model.InvoiceStatusNew, true
		case legacyStatusConfirmed:
			return model.InvoiceStatusPicked, true
		case legacyStatusFinalised:
			return model.InvoiceStatusShipped, true
		}
	case model.InvoiceTypeInboundShipment:
		switch legacyStatus {
		case legacyStatusNew, legacyStatusSuggested:
			// A transferred inbound arriving as "new" was already
			// shipped by the far side.
			if isTransfer {
				return model.InvoiceStatusShipped, true
			}
			return model.InvoiceStatusNew, true
		case legacyStatusConfirmed:
			return model.InvoiceStatusDelivered, true
		case legacyStatusFinalised:
			return model.InvoiceStatusVerified, true
		}
	case model.InvoiceTypePrescription:
		switch legacyStatus {
		case legacyStatusNew, legacyStatusSuggested:
			return model.InvoiceStatusNew, true
		case legacyStatusConfirmed:
			return model.InvoiceStatusPicked, true
		case legacyStatusFinalised:
			return model.InvoiceStatusVerified, true
		}
	case model.InvoiceTypeInventoryAddition, model.InvoiceTypeInventoryReduction, model.InvoiceTypeRepack:
		switch legacyStatus {
		case legacyStatusNew, legacyStatusSuggested:
			return model.InvoiceStatusNew, true
		case legacyStatusConfirmed, legacyStatusFinalised:
			return model.InvoiceStatusVerified, true
		}
	}
	return "", false
}

// timestampMapping holds the derived lifecycle timestamps for one invoice.
type timestampMapping struct {
	created   time.Time
	allocated *time.Time
	picked    *time.Time
	shipped   *time.Time
	delivered *time.Time
	verified  *time.Time
	backdated *time.Time
	colour    *string
}

// mapLegacyTimestamps derives lifecycle timestamps. A present
// om_created_datetime marks a record authored on a newer site, in which case
// every om timestamp is trusted verbatim. Otherwise the single legacy
// confirm date fans out per type and status.
func mapLegacyTimestamps(invoiceType model.InvoiceType, data *legacyTransactRow) timestampMapping {
	if data.OmCreatedDatetime.Valid {
		return withBackdating(timestampMapping{
			created:   data.OmCreatedDatetime.Time,
			allocated: data.OmAllocatedDatetime.Ptr(),
			picked:    data.OmPickedDatetime.Ptr(),
			shipped:   data.OmShippedDatetime.Ptr(),
			delivered: data.OmDeliveredDatetime.Ptr(),
			verified:  data.OmVerifiedDatetime.Ptr(),
			colour:    StrOrNil(data.OmColour),
		})
	}

	created := Datetime(data.EntryDate, data.EntryTime)
	if created == nil {
		now := time.Now().UTC()
		created = &now
	}
	mapping := timestampMapping{created: *created}
	confirm := Datetime(data.ConfirmDate, data.ConfirmTime)

	switch invoiceType {
	case model.InvoiceTypeOutboundShipment:
		switch data.Status {
		case legacyStatusConfirmed:
			mapping.allocated = confirm
			mapping.picked = confirm
		case legacyStatusFinalised:
			mapping.allocated = confirm
			mapping.picked = confirm
			mapping.shipped = confirm
		}
	case model.InvoiceTypeInboundShipment:
		switch data.Status {
		case legacyStatusConfirmed:
			mapping.delivered = confirm
		case legacyStatusFinalised:
			mapping.delivered = confirm
			mapping.verified = confirm
		}
	case model.InvoiceTypePrescription:
		switch data.Status {
		case legacyStatusConfirmed:
			mapping.picked = confirm
		case legacyStatusFinalised:
			mapping.picked = confirm
			mapping.verified = confirm
		}
	case model.InvoiceTypeInventoryAddition, model.InvoiceTypeInventoryReduction, model.InvoiceTypeRepack:
		switch data.Status {
		case legacyStatusConfirmed, legacyStatusFinalised:
			mapping.verified = confirm
		}
	}
	return withBackdating(mapping)
}

// withBackdating repairs records whose pick time precedes entry time, a
// known artifact of manual date entry on the legacy side.
func withBackdating(mapping timestampMapping) timestampMapping {
	if mapping.picked != nil && mapping.picked.Before(mapping.created) {
		mapping.backdated = mapping.picked
	}
	return mapping
}

func legacyTypeFromInvoice(invoiceType model.InvoiceType) (string, bool) {
	switch invoiceType {
	case model.InvoiceTypeOutboundShipment, model.InvoiceTypePrescription:
		return legacyTransactCustomerInvoice, true
	case model.InvoiceTypeInboundShipment, model.InvoiceTypeInventoryAddition:
		return legacyTransactSupplierInvoice, true
	case model.InvoiceTypeInventoryReduction:
		return legacyTransactSupplierCredit, true
	case model.InvoiceTypeRepack:
		return legacyTransactRepack, true
	}
	return "", false
}

func legacyStatusFromInvoice(invoiceType model.InvoiceType, status model.InvoiceStatus) (string, bool) {
	switch invoiceType {
	case model.InvoiceTypeOutboundShipment:
		switch status {
		case model.InvoiceStatusNew, model.InvoiceStatusAllocated:
			return legacyStatusSuggested, true
		case model.InvoiceStatusPicked:
			return legacyStatusConfirmed, true
		case model.InvoiceStatusShipped, model.InvoiceStatusDelivered, model.InvoiceStatusVerified:
			return legacyStatusFinalised, true
		}
	case model.InvoiceTypeInboundShipment:
		switch status {
		case model.InvoiceStatusNew, model.InvoiceStatusAllocated, model.InvoiceStatusPicked, model.InvoiceStatusShipped:
			return legacyStatusNew, true
		case model.InvoiceStatusDelivered:
			return legacyStatusConfirmed, true
		case model.InvoiceStatusVerified:
			return legacyStatusFinalised, true
		}
	case model.InvoiceTypePrescription:
		switch status {
		case model.InvoiceStatusNew:
			return legacyStatusNew, true
		case model.InvoiceStatusAllocated, model.InvoiceStatusPicked:
			return legacyStatusConfirmed, true
		case model.InvoiceStatusShipped, model.InvoiceStatusDelivered, model.InvoiceStatusVerified:
			return legacyStatusFinalised, true
		}
	case model.InvoiceTypeInventoryAddition, model.InvoiceTypeInventoryReduction, model.InvoiceTypeRepack:
		switch status {
		case model.InvoiceStatusVerified:
			return legacyStatusFinalised, true
		case model.InvoiceStatusNew, model.InvoiceStatusAllocated, model.InvoiceStatusPicked,
			model.InvoiceStatusShipped, model.InvoiceStatusDelivered:
			return legacyStatusNew, true
		}
	}
	return "", false
}

// legacyConfirmDatetime picks the timestamp the legacy wire writes into its
// single confirm slot, which differs per type.
func legacyConfirmDatetime(inv *model.Invoice) *time.Time {
	switch inv.Type {
	case model.InvoiceTypeOutboundShipment, model.InvoiceTypePrescription:
		return inv.PickedDatetime
	case model.InvoiceTypeInboundShipment:
		return inv.DeliveredDatetime
	default:
		return inv.VerifiedDatetime
	}
}
