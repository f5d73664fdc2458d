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

const numberTypeResponseRequisition = "response_requisition"

// RequisitionTransferProcessor pairs request requisitions with response
// requisitions. A request sent to a store on this site grows a response
// mirror at the supplying store, and finalising the response flows back onto
// the request.
type RequisitionTransferProcessor struct {
	datasource database.IDataSource
	siteID     int32
}

func NewRequisitionTransferProcessor(datasource database.IDataSource, siteID int32) *RequisitionTransferProcessor {
	return &RequisitionTransferProcessor{datasource: datasource, siteID: siteID}
}

func (p *RequisitionTransferProcessor) CursorKey() string {
	return database.CursorKeyRequisitionTransfer
}

func (p *RequisitionTransferProcessor) Tables() []model.TableName {
	return []model.TableName{model.TableNameRequisition}
}

func (p *RequisitionTransferProcessor) Process(ctx context.Context, entry model.ChangelogEntry) error {
	if entry.RowAction == model.RowActionDelete {
		return p.deleteLinkedResponse(ctx, entry.RecordID)
	}

	req, err := p.datasource.GetRequisition(ctx, entry.RecordID)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	switch req.Type {
	case model.RequisitionTypeRequest:
		return p.processRequest(ctx, req)
	case model.RequisitionTypeResponse:
		return p.processResponse(ctx, req)
	}
	return nil
}

// processRequest creates and links the response mirror once the request has
// been sent. Drafts stay private to the ordering store.
func (p *RequisitionTransferProcessor) processRequest(ctx context.Context, request *model.Requisition) error {
	if request.Status != model.RequisitionStatusSent && request.Status != model.RequisitionStatusFinalised {
		return nil
	}

	supplierNameID, err := p.datasource.ResolveNameLink(ctx, request.NameLinkID)
	if err != nil {
		return err
	}
	supplyingStore, err := p.datasource.GetStoreByNameID(ctx, supplierNameID)
	if err != nil {
		return err
	}
	if supplyingStore == nil || supplyingStore.SiteID != p.siteID {
		return nil
	}

	response, err := p.datasource.GetRequisitionByLinkedRequisitionID(ctx, request.ID)
	if err != nil {
		return err
	}
	if response != nil && response.Type != model.RequisitionTypeResponse {
		return &ConsistencyError{Reason: fmt.Sprintf("requisition %s is linked to %s which is not a response requisition", request.ID, response.ID)}
	}

	if response == nil {
		return p.createResponse(ctx, request, supplyingStore)
	}
	if request.LinkedRequisitionID == nil {
		request.LinkedRequisitionID = &response.ID
		return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
			return p.datasource.UpsertRequisition(ctx, tx, request)
		})
	}
	return nil
}

func (p *RequisitionTransferProcessor) createResponse(ctx context.Context, request *model.Requisition, supplyingStore *model.Store) error {
	orderingStore, err := p.datasource.GetStore(ctx, request.StoreID)
	if err != nil {
		return err
	}
	if orderingStore == nil {
		return &ConsistencyError{Reason: fmt.Sprintf("request requisition %s belongs to unknown store %s", request.ID, request.StoreID)}
	}
	requestLines, err := p.datasource.GetRequisitionLines(ctx, request.ID)
	if err != nil {
		return err
	}

	response := &model.Requisition{
		ID:                  uuid.New().String(),
		StoreID:             supplyingStore.ID,
		NameLinkID:          orderingStore.NameID,
		Type:                model.RequisitionTypeResponse,
		Status:              model.RequisitionStatusNew,
		Comment:             request.Comment,
		TheirReference:      request.TheirReference,
		MaxMonthsOfStock:    request.MaxMonthsOfStock,
		MinMonthsOfStock:    request.MinMonthsOfStock,
		LinkedRequisitionID: &request.ID,
		CreatedDatetime:     time.Now().UTC(),
		SentDatetime:        request.SentDatetime,
	}

	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		number, err := p.datasource.NextNumber(ctx, tx, numberTypeResponseRequisition, supplyingStore.ID)
		if err != nil {
			return err
		}
		response.RequisitionNumber = number
		if err := p.datasource.UpsertRequisition(ctx, tx, response); err != nil {
			return err
		}
		for _, src := range requestLines {
			line := model.RequisitionLine{
				ID:                   uuid.New().String(),
				RequisitionID:        response.ID,
				ItemID:               src.ItemID,
				RequestedQuantity:    src.RequestedQuantity,
				SuggestedQuantity:    src.SuggestedQuantity,
				SupplyQuantity:       src.RequestedQuantity,
				AvailableStockOnHand: src.AvailableStockOnHand,
				Comment:              src.Comment,
			}
			if err := p.datasource.UpsertRequisitionLine(ctx, tx, &line); err != nil {
				return err
			}
		}
		request.LinkedRequisitionID = &response.ID
		return p.datasource.UpsertRequisition(ctx, tx, request)
	})
}

// processResponse mirrors the finalised state back onto the request so the
// ordering store sees its order has been actioned.
func (p *RequisitionTransferProcessor) processResponse(ctx context.Context, response *model.Requisition) error {
	if response.Status != model.RequisitionStatusFinalised {
		return nil
	}
	if response.LinkedRequisitionID == nil {
		return nil
	}
	request, err := p.datasource.GetRequisition(ctx, *response.LinkedRequisitionID)
	if err != nil {
		return err
	}
	if request == nil || request.Type != model.RequisitionTypeRequest {
		return nil
	}
	if request.Status == model.RequisitionStatusFinalised {
		return nil
	}
	orderingStore, err := p.datasource.GetStore(ctx, request.StoreID)
	if err != nil {
		return err
	}
	if orderingStore == nil || orderingStore.SiteID != p.siteID {
		return nil
	}

	request.Status = model.RequisitionStatusFinalised
	request.FinalisedDatetime = response.FinalisedDatetime
	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		return p.datasource.UpsertRequisition(ctx, tx, request)
	})
}

// deleteLinkedResponse removes the response mirror of a deleted request.
// A finalised response records a supply decision already made and stays.
func (p *RequisitionTransferProcessor) deleteLinkedResponse(ctx context.Context, deletedID string) error {
	mirror, err := p.datasource.GetRequisitionByLinkedRequisitionID(ctx, deletedID)
	if err != nil {
		return err
	}
	if mirror == nil || mirror.Type != model.RequisitionTypeResponse {
		return nil
	}
	store, err := p.datasource.GetStore(ctx, mirror.StoreID)
	if err != nil {
		return err
	}
	if store == nil || store.SiteID != p.siteID {
		return nil
	}
	if mirror.Status == model.RequisitionStatusFinalised {
		return nil
	}

	lines, err := p.datasource.GetRequisitionLines(ctx, mirror.ID)
	if err != nil {
		return err
	}
	return p.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, line := range lines {
			if err := p.datasource.DeleteRequisitionLine(ctx, tx, line.ID); err != nil {
				return err
			}
		}
		return p.datasource.DeleteRequisition(ctx, tx, mirror.ID)
	})
}
