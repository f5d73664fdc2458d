package model

import "time"

// RequisitionType distinguishes the requesting half from the responding half
// of a cross store requisition pair.
type RequisitionType string

const (
	RequisitionTypeRequest  RequisitionType = "REQUEST"
	RequisitionTypeResponse RequisitionType = "RESPONSE"
)

// RequisitionStatus is the requisition lifecycle.
type RequisitionStatus string

const (
	RequisitionStatusDraft     RequisitionStatus = "DRAFT"
	RequisitionStatusNew       RequisitionStatus = "NEW"
	RequisitionStatusSent      RequisitionStatus = "SENT"
	RequisitionStatusFinalised RequisitionStatus = "FINALISED"
)

// Requisition is an order document: a request requisition at the ordering
// store produces a response requisition at the supplying store.
type Requisition struct {
	ID                  string            `json:"id"`
	RequisitionNumber   int64             `json:"requisition_number"`
	StoreID             string            `json:"store_id"`
	NameLinkID          string            `json:"name_link_id"`
	UserID              *string           `json:"user_id,omitempty"`
	Type                RequisitionType   `json:"type"`
	Status              RequisitionStatus `json:"status"`
	Comment             *string           `json:"comment,omitempty"`
	TheirReference      *string           `json:"their_reference,omitempty"`
	MaxMonthsOfStock    float64           `json:"max_months_of_stock"`
	MinMonthsOfStock    float64           `json:"min_months_of_stock"`
	LinkedRequisitionID *string           `json:"linked_requisition_id,omitempty"`

	CreatedDatetime   time.Time  `json:"created_datetime"`
	SentDatetime      *time.Time `json:"sent_datetime,omitempty"`
	FinalisedDatetime *time.Time `json:"finalised_datetime,omitempty"`
}

// RequisitionLine is a single item request on a requisition.
type RequisitionLine struct {
	ID                   string  `json:"id"`
	RequisitionID        string  `json:"requisition_id"`
	ItemID               string  `json:"item_id"`
	RequestedQuantity    float64 `json:"requested_quantity"`
	SuggestedQuantity    float64 `json:"suggested_quantity"`
	SupplyQuantity       float64 `json:"supply_quantity"`
	AvailableStockOnHand float64 `json:"available_stock_on_hand"`
	Comment              *string `json:"comment,omitempty"`
}
