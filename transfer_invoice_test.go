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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesync/storesync/model"
)

func invoiceEntry(id string, action model.RowAction) model.ChangelogEntry {
	return model.ChangelogEntry{TableName: model.TableNameInvoice, RecordID: id, RowAction: action}
}

// transferFixture is two stores on the same site with a picked outbound
// shipment from A to B holding two committed stock lines and one
// unallocated placeholder.
func transferFixture(t *testing.T) (*memStore, *InvoiceTransferProcessor) {
	t.Helper()
	mem := newMemStore()
	mem.seedStore("storeA", "nameA", "STA", localSiteID)
	mem.seedStore("storeB", "nameB", "STB", localSiteID)

	picked := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ref := "their-ref"
	comment := "fragile"
	mem.invoices["out1"] = model.Invoice{
		ID:              "out1",
		StoreID:         "storeA",
		NameLinkID:      "nameB",
		InvoiceNumber:   15,
		Type:            model.InvoiceTypeOutboundShipment,
		Status:          model.InvoiceStatusPicked,
		TheirReference:  &ref,
		Comment:         &comment,
		CurrencyRate:    1,
		CreatedDatetime: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		PickedDatetime:  &picked,
	}
	mem.invoiceLines["l1"] = model.InvoiceLine{
		ID: "l1", InvoiceID: "out1", ItemID: "item1", ItemName: "Amoxicillin", ItemCode: "AMX",
		PackSize: 10, NumberOfPacks: 2, CostPricePerPack: 3, SellPricePerPack: 5, TotalBeforeTax: 10,
		Type: model.InvoiceLineTypeStockOut,
	}
	mem.invoiceLines["l2"] = model.InvoiceLine{
		ID: "l2", InvoiceID: "out1", ItemID: "item2", ItemName: "Paracetamol", ItemCode: "PCM",
		PackSize: 10, NumberOfPacks: 6, CostPricePerPack: 2, SellPricePerPack: 4, TotalBeforeTax: 24,
		Type: model.InvoiceLineTypeStockOut,
	}
	mem.invoiceLines["l3"] = model.InvoiceLine{
		ID: "l3", InvoiceID: "out1", ItemID: "item3", ItemName: "Unstocked", ItemCode: "UNS",
		Type: model.InvoiceLineTypeUnallocatedStock,
	}

	return mem, NewInvoiceTransferProcessor(mem, localSiteID)
}

func TestPickedOutboundCreatesInbound(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, err := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NoError(t, err)
	require.NotNil(t, inbound)
	assert.Equal(t, model.InvoiceTypeInboundShipment, inbound.Type)
	assert.Equal(t, model.InvoiceStatusPicked, inbound.Status)
	assert.Equal(t, "storeB", inbound.StoreID)
	assert.Equal(t, "nameA", inbound.NameLinkID)
	require.NotNil(t, inbound.NameStoreID)
	assert.Equal(t, "storeA", *inbound.NameStoreID)
	assert.Equal(t, int64(1), inbound.InvoiceNumber)
	require.NotNil(t, inbound.TheirReference)
	assert.Equal(t, "From invoice number: 15 (their-ref)", *inbound.TheirReference)
	require.NotNil(t, inbound.Comment)
	assert.Equal(t, "Stock transfer (fragile)", *inbound.Comment)
	require.NotNil(t, inbound.PickedDatetime)

	source, _ := mem.GetInvoice(ctx, "out1")
	require.NotNil(t, source.LinkedInvoiceID)
	assert.Equal(t, inbound.ID, *source.LinkedInvoiceID)

	lines, err := mem.GetInvoiceLines(ctx, inbound.ID)
	require.NoError(t, err)
	// The unallocated placeholder never ships.
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, model.InvoiceLineTypeStockIn, line.Type)
		require.NotNil(t, line.LinkedInvoiceID)
		assert.Equal(t, "out1", *line.LinkedInvoiceID)
	}
	byItem := map[string]model.InvoiceLine{}
	for _, line := range lines {
		byItem[line.ItemID] = line
	}
	// The receiving store pays what the source charged.
	assert.Equal(t, 5.0, byItem["item1"].CostPricePerPack)
	assert.Equal(t, 2.0, byItem["item1"].NumberOfPacks)
	assert.Equal(t, 4.0, byItem["item2"].CostPricePerPack)
	assert.Equal(t, 6.0, byItem["item2"].NumberOfPacks)
}

func TestProcessIsIdempotent(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))
	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NotNil(t, inbound)
	firstLines, _ := mem.GetInvoiceLines(ctx, inbound.ID)

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))
	require.NoError(t, processor.Process(ctx, invoiceEntry(inbound.ID, model.RowActionUpsert)))

	assert.Len(t, mem.invoices, 2)
	again, _ := mem.GetInvoiceLines(ctx, inbound.ID)
	assert.Equal(t, firstLines, again)
}

func TestShippedOutboundRegeneratesInboundLines(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))
	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NotNil(t, inbound)

	// The sender removes one line and repicks the other before shipping.
	shipped := time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)
	transport := "TRUCK-7"
	delete(mem.invoiceLines, "l1")
	l2 := mem.invoiceLines["l2"]
	l2.NumberOfPacks = 21
	mem.invoiceLines["l2"] = l2
	source, _ := mem.GetInvoice(ctx, "out1")
	source.Status = model.InvoiceStatusShipped
	source.ShippedDatetime = &shipped
	source.TransportReference = &transport
	mem.invoices["out1"] = *source

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, _ = mem.GetInvoice(ctx, inbound.ID)
	require.NotNil(t, inbound)
	assert.Equal(t, model.InvoiceStatusShipped, inbound.Status)
	require.NotNil(t, inbound.ShippedDatetime)
	assert.Equal(t, shipped, *inbound.ShippedDatetime)
	require.NotNil(t, inbound.TransportReference)
	assert.Equal(t, "TRUCK-7", *inbound.TransportReference)

	lines, _ := mem.GetInvoiceLines(ctx, inbound.ID)
	require.Len(t, lines, 1)
	assert.Equal(t, "item2", lines[0].ItemID)
	assert.Equal(t, 21.0, lines[0].NumberOfPacks)
}

func TestDeliveredInboundMirrorsBackToOutbound(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))
	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NotNil(t, inbound)

	delivered := time.Date(2024, 5, 4, 11, 0, 0, 0, time.UTC)
	inbound.Status = model.InvoiceStatusDelivered
	inbound.DeliveredDatetime = &delivered
	mem.invoices[inbound.ID] = *inbound

	require.NoError(t, processor.Process(ctx, invoiceEntry(inbound.ID, model.RowActionUpsert)))

	source, _ := mem.GetInvoice(ctx, "out1")
	assert.Equal(t, model.InvoiceStatusDelivered, source.Status)
	require.NotNil(t, source.DeliveredDatetime)
	assert.Equal(t, delivered, *source.DeliveredDatetime)

	verified := time.Date(2024, 5, 5, 9, 0, 0, 0, time.UTC)
	inbound.Status = model.InvoiceStatusVerified
	inbound.VerifiedDatetime = &verified
	mem.invoices[inbound.ID] = *inbound

	require.NoError(t, processor.Process(ctx, invoiceEntry(inbound.ID, model.RowActionUpsert)))

	source, _ = mem.GetInvoice(ctx, "out1")
	assert.Equal(t, model.InvoiceStatusVerified, source.Status)
	require.NotNil(t, source.VerifiedDatetime)
	assert.Equal(t, verified, *source.VerifiedDatetime)
}

func TestDeletedOutboundDeletesInboundBeforeDelivery(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))
	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NotNil(t, inbound)

	require.NoError(t, mem.DeleteInvoice(ctx, nil, "out1"))
	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionDelete)))

	gone, _ := mem.GetInvoice(ctx, inbound.ID)
	assert.Nil(t, gone)
	lines, _ := mem.GetInvoiceLines(ctx, inbound.ID)
	assert.Empty(t, lines)
}

func TestDeletedOutboundKeepsDeliveredInbound(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))
	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NotNil(t, inbound)

	delivered := time.Date(2024, 5, 4, 11, 0, 0, 0, time.UTC)
	inbound.Status = model.InvoiceStatusDelivered
	inbound.DeliveredDatetime = &delivered
	mem.invoices[inbound.ID] = *inbound

	require.NoError(t, mem.DeleteInvoice(ctx, nil, "out1"))
	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionDelete)))

	// Real stock has moved; the mirror stays.
	kept, _ := mem.GetInvoice(ctx, inbound.ID)
	assert.NotNil(t, kept)
}

func TestDeletedInboundNeverDeletesOutbound(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))
	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NotNil(t, inbound)

	require.NoError(t, mem.DeleteInvoice(ctx, nil, inbound.ID))
	require.NoError(t, processor.Process(ctx, invoiceEntry(inbound.ID, model.RowActionDelete)))

	source, _ := mem.GetInvoice(ctx, "out1")
	assert.NotNil(t, source)
}

func TestOutboundToMergedPartyResolvesSurvivingStore(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	// The outbound is addressed to a party since merged into nameB.
	mem.mergeNames("nameOld", "nameB")
	source, _ := mem.GetInvoice(ctx, "out1")
	source.NameLinkID = "nameOld"
	mem.invoices["out1"] = *source

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	require.NotNil(t, inbound)
	assert.Equal(t, "storeB", inbound.StoreID)
}

func TestOutboundToNonStorePartyIsNoop(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	seedCustomer(mem, "cust1", "CUST1")
	source, _ := mem.GetInvoice(ctx, "out1")
	source.NameLinkID = "cust1"
	mem.invoices["out1"] = *source

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	assert.Nil(t, inbound)
}

func TestOutboundToRemoteSiteStoreIsNoop(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	mem.seedStore("storeR", "nameR", "STR", 99)
	source, _ := mem.GetInvoice(ctx, "out1")
	source.NameLinkID = "nameR"
	mem.invoices["out1"] = *source

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	assert.Nil(t, inbound)
}

func TestHistoricalOutboundPredatingStoreIsNoop(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	// The receiving store was created long after the shipment was raised.
	created := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	storeB := mem.stores["storeB"]
	storeB.CreatedDate = &created
	mem.stores["storeB"] = storeB

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	assert.Nil(t, inbound)
}

func TestRecentOutboundWithinStoreGraceIsMirrored(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	// Created three weeks after the shipment, inside the grace window.
	created := time.Date(2024, 5, 22, 0, 0, 0, 0, time.UTC)
	storeB := mem.stores["storeB"]
	storeB.CreatedDate = &created
	mem.stores["storeB"] = storeB

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	assert.NotNil(t, inbound)
}

func TestUnpickedOutboundIsNoop(t *testing.T) {
	mem, processor := transferFixture(t)
	ctx := context.Background()

	source, _ := mem.GetInvoice(ctx, "out1")
	source.Status = model.InvoiceStatusAllocated
	mem.invoices["out1"] = *source

	require.NoError(t, processor.Process(ctx, invoiceEntry("out1", model.RowActionUpsert)))

	inbound, _ := mem.GetInvoiceByLinkedInvoiceID(ctx, "out1")
	assert.Nil(t, inbound)
}
