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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storesync/storesync/database"
	"github.com/storesync/storesync/model"
)

const (
	numberTypeInboundShipment = "inbound_shipment"

	// Shipments raised more than this long before the receiving store was
	// created are history, not pending transfers.
	storeCreatedGraceDays = 30
)

// InvoiceTransferProcessor keeps shipment pairs in lockstep. An outbound
// shipment addressed to a store on this site grows an inbound mirror once
// committed, the mirror's lines track the source until the source ships, and
// terminal inbound timestamps flow back onto the source.
type InvoiceTransferProcessor struct {
	datasource database.IDataSource
	siteID     int32
}

func NewInvoiceTransferProcessor(datasource database.IDataSource, siteID int32) *InvoiceTransferProcessor {
	return &InvoiceTransferProcessor{datasource: datasource, siteID: siteID}
}

func (p *InvoiceTransferProcessor) CursorKey() string {
	return database.CursorKeyInvoiceTransfer
}

func (p *InvoiceTransferProcessor) Tables() []model.TableName {
	return []model.TableName{model.TableNameInvoice}
}

func (p *InvoiceTransferProcessor) Process(ctx context.Context, entry model.ChangelogEntry) error {
	if entry.RowAction == model.RowActionDelete {
		return p.deleteLinkedInbound(ctx, entry.RecordID)
	}

	source, err := p.datasource.GetInvoice(ctx, entry.RecordID)
	if err != nil {
		return err
	}
	if source == nil {
		// Deleted after this entry was written; the delete entry follows.
		return nil
	}

	switch source.Type {
	case model.InvoiceTypeOutboundShipment:
		return p.processOutbound(ctx, source)
	case model.InvoiceTypeInboundShipment:
		return p.processInbound(ctx, source)
	}
	return nil
}

// processOutbound creates, links and updates the inbound mirror of an
// outbound shipment. Every step is guarded so replaying the same changelog
// range is a no-op.
func (p *InvoiceTransferProcessor) processOutbound(ctx context.Context, source *model.Invoice) error {
	targetStore, err := p.resolveTargetStore(ctx, source.NameLinkID)
	if err != nil {
		return err
	}
	if targetStore == nil || targetStore.SiteID != p.siteID {
		// Not a transfer, or the receiving store syncs elsewhere.
		return nil
	}
	if targetStore.CreatedDate != nil &&
		source.CreatedDatetime.Before(targetStore.CreatedDate.AddDate(0, 0, -storeCreatedGraceDays)) {
		// Historical shipment predating the receiving store.
		return nil
	}
	if !source.Status.AtLeast(model.InvoiceStatusPicked) {
		return nil
	}

	inbound, err := p.datasource.GetInvoiceByLinkedInvoiceID(ctx, source.ID)
	if err != nil {
		return err
	}
	if inbound != nil && inbound.Type != model.InvoiceTypeInboundShipment {
		return &ConsistencyError{Reason: fmt.Sprintf("invoice %s is linked to %s which is not an inbound shipment", source.ID, inbound.ID)}
	}

	if inbound == nil {
		return p.createInbound(ctx, source, targetStore)
	}
	if source.LinkedInvoiceID == nil {
		if err := p.linkOutbound(ctx, source, inbound); err != nil {
			return err
		}
	}
	return p.updateInbound(ctx, source, inbound)
}

// resolveTargetStore maps the shipment's party to a store, following the
// merge indirection first so documents addressed to a merged party land on
// the surviving store rather than creating a duplicate mirror.
func (p *InvoiceTransferProcessor) resolveTargetStore(ctx context.Context, nameLinkID string) (*model.Store, error) {
	nameID, err := p.datasource.ResolveNameLink(ctx, nameLinkID)
	if err != nil {
		return nil, err
	}
	return p.datasource.GetStoreByNameID(ctx, nameID)
}

func (p *InvoiceTransferProcessor) createInbound(ctx context.Context, source *model.Invoice, targetStore *model.Store) error {
	sourceStore, err := p.datasource.GetStore(ctx, source.StoreID)
	if err != nil {
		return err
	}
	if sourceStore == nil {
		return &ConsistencyError{Reason: fmt.Sprintf("outbound shipment %s belongs to unknown store %s", source.ID, source.StoreID)}
	}
	sourceLines, err := p.datasource.GetInvoiceLines(ctx, source.ID)
	if err != nil {
		return err
	}

	status := model.InvoiceStatusPicked
	if source.Status.AtLeast(model.InvoiceStatusShipped) {
		status = model.InvoiceStatusShipped
	}
	now := time.Now().UTC()

	inbound := &model.Invoice{
		ID:                 uuid.New().String(),
		StoreID:            targetStore.ID,
		NameLinkID:         sourceStore.NameID,
		NameStoreID:        &sourceStore.ID,
		Type:               model.InvoiceTypeInboundShipment,
		Status:             status,
		Comment:            transferComment(source.Comment),
		TheirReference:     transferReference(source),
		CurrencyRate:       source.CurrencyRate,
		CurrencyID:         source.CurrencyID,
		LinkedInvoiceID:    &source.ID,
		TransportReference: source.TransportReference,
		CreatedDatetime:    now,
		PickedDatetime:     source.PickedDatetime,
		ShippedDatetime:    source.ShippedDatetime,
	}

	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		number, err := p.datasource.NextNumber(ctx, tx, numberTypeInboundShipment, targetStore.ID)
		if err != nil {
			return err
		}
		inbound.InvoiceNumber = number
		if err := p.datasource.UpsertInvoice(ctx, tx, inbound); err != nil {
			return err
		}
		for _, line := range generateInboundLines(inbound, source, sourceLines) {
			if err := p.datasource.UpsertInvoiceLine(ctx, tx, &line); err != nil {
				return err
			}
		}
		source.LinkedInvoiceID = &inbound.ID
		return p.datasource.UpsertInvoice(ctx, tx, source)
	})
}

// linkOutbound closes the link loop for an inbound that already exists but
// whose source never recorded the back reference, which happens when the
// mirror was created by an earlier run that failed before the final write.
func (p *InvoiceTransferProcessor) linkOutbound(ctx context.Context, source, inbound *model.Invoice) error {
	source.LinkedInvoiceID = &inbound.ID
	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		return p.datasource.UpsertInvoice(ctx, tx, source)
	})
}

// updateInbound regenerates the mirror's lines and advances it to Shipped
// once the source ships. The mirror is only rewritten while still Picked;
// after the receiving store takes delivery its copy is authoritative.
func (p *InvoiceTransferProcessor) updateInbound(ctx context.Context, source, inbound *model.Invoice) error {
	if !source.Status.AtLeast(model.InvoiceStatusShipped) {
		return nil
	}
	if inbound.Status != model.InvoiceStatusPicked {
		return nil
	}

	existingLines, err := p.datasource.GetInvoiceLines(ctx, inbound.ID)
	if err != nil {
		return err
	}
	sourceLines, err := p.datasource.GetInvoiceLines(ctx, source.ID)
	if err != nil {
		return err
	}

	inbound.Status = model.InvoiceStatusShipped
	inbound.ShippedDatetime = source.ShippedDatetime
	inbound.TransportReference = source.TransportReference

	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, line := range existingLines {
			if err := p.datasource.DeleteInvoiceLine(ctx, tx, line.ID); err != nil {
				return err
			}
		}
		for _, line := range generateInboundLines(inbound, source, sourceLines) {
			if err := p.datasource.UpsertInvoiceLine(ctx, tx, &line); err != nil {
				return err
			}
		}
		return p.datasource.UpsertInvoice(ctx, tx, inbound)
	})
}

// processInbound mirrors terminal timestamps back onto the source outbound
// so both sides' audit history agree once the receiving store delivers or
// verifies.
func (p *InvoiceTransferProcessor) processInbound(ctx context.Context, inbound *model.Invoice) error {
	if inbound.LinkedInvoiceID == nil {
		return nil
	}
	if !inbound.Status.AtLeast(model.InvoiceStatusDelivered) {
		return nil
	}
	outbound, err := p.datasource.GetInvoice(ctx, *inbound.LinkedInvoiceID)
	if err != nil {
		return err
	}
	if outbound == nil || outbound.Type != model.InvoiceTypeOutboundShipment {
		return nil
	}
	sourceStore, err := p.datasource.GetStore(ctx, outbound.StoreID)
	if err != nil {
		return err
	}
	if sourceStore == nil || sourceStore.SiteID != p.siteID {
		return nil
	}

	changed := false
	if inbound.DeliveredDatetime != nil && outbound.DeliveredDatetime == nil {
		outbound.DeliveredDatetime = inbound.DeliveredDatetime
		if !outbound.Status.AtLeast(model.InvoiceStatusDelivered) {
			outbound.Status = model.InvoiceStatusDelivered
		}
		changed = true
	}
	if inbound.VerifiedDatetime != nil && outbound.VerifiedDatetime == nil {
		outbound.VerifiedDatetime = inbound.VerifiedDatetime
		if !outbound.Status.AtLeast(model.InvoiceStatusVerified) {
			outbound.Status = model.InvoiceStatusVerified
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		return p.datasource.UpsertInvoice(ctx, tx, outbound)
	})
}

// deleteLinkedInbound removes the mirror of a deleted outbound shipment,
// provided the mirror has not passed the point of no return. Once delivered
// the receiving store owns real stock movements and the mirror stays.
func (p *InvoiceTransferProcessor) deleteLinkedInbound(ctx context.Context, deletedID string) error {
	mirror, err := p.datasource.GetInvoiceByLinkedInvoiceID(ctx, deletedID)
	if err != nil {
		return err
	}
	if mirror == nil || mirror.Type != model.InvoiceTypeInboundShipment {
		return nil
	}
	store, err := p.datasource.GetStore(ctx, mirror.StoreID)
	if err != nil {
		return err
	}
	if store == nil || store.SiteID != p.siteID {
		return nil
	}
	if mirror.Status.AtLeast(model.InvoiceStatusDelivered) {
		return nil
	}

	lines, err := p.datasource.GetInvoiceLines(ctx, mirror.ID)
	if err != nil {
		return err
	}
	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, line := range lines {
			if err := p.datasource.DeleteInvoiceLine(ctx, tx, line.ID); err != nil {
				return err
			}
		}
		return p.datasource.DeleteInvoice(ctx, tx, mirror.ID)
	})
}

// generateInboundLines projects the source's committed lines onto the
// mirror. Unallocated placeholders never ship, stock movements arrive as
// stock in at the price the source charged, and service lines carry over
// unchanged.
func generateInboundLines(inbound, source *model.Invoice, sourceLines []model.InvoiceLine) []model.InvoiceLine {
	var lines []model.InvoiceLine
	for _, src := range sourceLines {
		if src.Type == model.InvoiceLineTypeUnallocatedStock {
			continue
		}
		lineType := model.InvoiceLineTypeStockIn
		if src.Type == model.InvoiceLineTypeService {
			lineType = model.InvoiceLineTypeService
		}
		line := model.InvoiceLine{
			ID:               uuid.New().String(),
			InvoiceID:        inbound.ID,
			ItemID:           src.ItemID,
			ItemName:         src.ItemName,
			ItemCode:         src.ItemCode,
			Batch:            src.Batch,
			ExpiryDate:       src.ExpiryDate,
			PackSize:         src.PackSize,
			NumberOfPacks:    src.NumberOfPacks,
			CostPricePerPack: src.SellPricePerPack,
			SellPricePerPack: 0,
			TotalBeforeTax:   src.SellPricePerPack * src.NumberOfPacks,
			Type:             lineType,
			Note:             src.Note,
			LinkedInvoiceID:  &source.ID,
		}
		lines = append(lines, line)
	}
	return lines
}

func transferReference(source *model.Invoice) *string {
	ref := fmt.Sprintf("From invoice number: %d", source.InvoiceNumber)
	if source.TheirReference != nil {
		ref = fmt.Sprintf("%s (%s)", ref, *source.TheirReference)
	}
	return &ref
}

func transferComment(sourceComment *string) *string {
	comment := "Stock transfer"
	if sourceComment != nil {
		comment = fmt.Sprintf("%s (%s)", comment, *sourceComment)
	}
	return &comment
}
