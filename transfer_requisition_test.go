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

func requisitionEntry(id string, action model.RowAction) model.ChangelogEntry {
	return model.ChangelogEntry{TableName: model.TableNameRequisition, RecordID: id, RowAction: action}
}

// requisitionFixture is an ordering store and a supplying store on the same
// site, with a sent request requisition from the ordering store.
func requisitionFixture(t *testing.T) (*memStore, *RequisitionTransferProcessor) {
	t.Helper()
	mem := newMemStore()
	mem.seedStore("storeA", "nameA", "STA", localSiteID)
	mem.seedStore("storeB", "nameB", "STB", localSiteID)

	sent := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	comment := "monthly order"
	mem.requisitions["req1"] = model.Requisition{
		ID:                "req1",
		RequisitionNumber: 7,
		StoreID:           "storeA",
		NameLinkID:        "nameB",
		Type:              model.RequisitionTypeRequest,
		Status:            model.RequisitionStatusSent,
		Comment:           &comment,
		MaxMonthsOfStock:  3,
		MinMonthsOfStock:  1,
		CreatedDatetime:   time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC),
		SentDatetime:      &sent,
	}
	mem.requisitionLines["rl1"] = model.RequisitionLine{
		ID: "rl1", RequisitionID: "req1", ItemID: "item1",
		RequestedQuantity: 40, SuggestedQuantity: 35, AvailableStockOnHand: 12,
	}
	mem.requisitionLines["rl2"] = model.RequisitionLine{
		ID: "rl2", RequisitionID: "req1", ItemID: "item2",
		RequestedQuantity: 10, SuggestedQuantity: 10, AvailableStockOnHand: 0,
	}

	return mem, NewRequisitionTransferProcessor(mem, localSiteID)
}

func TestSentRequestCreatesResponse(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))

	response, err := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, model.RequisitionTypeResponse, response.Type)
	assert.Equal(t, model.RequisitionStatusNew, response.Status)
	assert.Equal(t, "storeB", response.StoreID)
	assert.Equal(t, "nameA", response.NameLinkID)
	assert.Equal(t, int64(1), response.RequisitionNumber)
	assert.Equal(t, 3.0, response.MaxMonthsOfStock)
	assert.Equal(t, 1.0, response.MinMonthsOfStock)
	require.NotNil(t, response.SentDatetime)

	request, _ := mem.GetRequisition(ctx, "req1")
	require.NotNil(t, request.LinkedRequisitionID)
	assert.Equal(t, response.ID, *request.LinkedRequisitionID)

	lines, err := mem.GetRequisitionLines(ctx, response.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	byItem := map[string]model.RequisitionLine{}
	for _, line := range lines {
		byItem[line.ItemID] = line
	}
	// Supply starts out matching what was asked for.
	assert.Equal(t, 40.0, byItem["item1"].RequestedQuantity)
	assert.Equal(t, 40.0, byItem["item1"].SupplyQuantity)
	assert.Equal(t, 10.0, byItem["item2"].SupplyQuantity)
}

func TestDraftRequestIsNoop(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	request, _ := mem.GetRequisition(ctx, "req1")
	request.Status = model.RequisitionStatusDraft
	mem.requisitions["req1"] = *request

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))

	response, _ := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	assert.Nil(t, response)
}

func TestRequestProcessIsIdempotent(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))
	response, _ := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	require.NotNil(t, response)
	firstLines, _ := mem.GetRequisitionLines(ctx, response.ID)

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))
	require.NoError(t, processor.Process(ctx, requisitionEntry(response.ID, model.RowActionUpsert)))

	assert.Len(t, mem.requisitions, 2)
	again, _ := mem.GetRequisitionLines(ctx, response.ID)
	assert.Equal(t, firstLines, again)
}

func TestFinalisedResponseMirrorsBackToRequest(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))
	response, _ := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	require.NotNil(t, response)

	finalised := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)
	response.Status = model.RequisitionStatusFinalised
	response.FinalisedDatetime = &finalised
	mem.requisitions[response.ID] = *response

	require.NoError(t, processor.Process(ctx, requisitionEntry(response.ID, model.RowActionUpsert)))

	request, _ := mem.GetRequisition(ctx, "req1")
	assert.Equal(t, model.RequisitionStatusFinalised, request.Status)
	require.NotNil(t, request.FinalisedDatetime)
	assert.Equal(t, finalised, *request.FinalisedDatetime)
}

func TestDeletedRequestDeletesUnfinalisedResponse(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))
	response, _ := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	require.NotNil(t, response)

	require.NoError(t, mem.DeleteRequisition(ctx, nil, "req1"))
	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionDelete)))

	gone, _ := mem.GetRequisition(ctx, response.ID)
	assert.Nil(t, gone)
	lines, _ := mem.GetRequisitionLines(ctx, response.ID)
	assert.Empty(t, lines)
}

func TestDeletedRequestKeepsFinalisedResponse(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))
	response, _ := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	require.NotNil(t, response)

	finalised := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)
	response.Status = model.RequisitionStatusFinalised
	response.FinalisedDatetime = &finalised
	mem.requisitions[response.ID] = *response

	require.NoError(t, mem.DeleteRequisition(ctx, nil, "req1"))
	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionDelete)))

	kept, _ := mem.GetRequisition(ctx, response.ID)
	assert.NotNil(t, kept)
}

func TestRequestToRemoteSupplierIsNoop(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	mem.seedStore("storeR", "nameR", "STR", 99)
	request, _ := mem.GetRequisition(ctx, "req1")
	request.NameLinkID = "nameR"
	mem.requisitions["req1"] = *request

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))

	response, _ := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	assert.Nil(t, response)
}

func TestRequestToMergedSupplierResolvesSurvivingStore(t *testing.T) {
	mem, processor := requisitionFixture(t)
	ctx := context.Background()

	mem.mergeNames("nameOld", "nameB")
	request, _ := mem.GetRequisition(ctx, "req1")
	request.NameLinkID = "nameOld"
	mem.requisitions["req1"] = *request

	require.NoError(t, processor.Process(ctx, requisitionEntry("req1", model.RowActionUpsert)))

	response, _ := mem.GetRequisitionByLinkedRequisitionID(ctx, "req1")
	require.NotNil(t, response)
	assert.Equal(t, "storeB", response.StoreID)
}
