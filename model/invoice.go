package model

import "time"

// InvoiceType is the document type of an invoice-like record.
type InvoiceType string

const (
	InvoiceTypeOutboundShipment   InvoiceType = "OUTBOUND_SHIPMENT"
	InvoiceTypeInboundShipment    InvoiceType = "INBOUND_SHIPMENT"
	InvoiceTypeInventoryAddition  InvoiceType = "INVENTORY_ADDITION"
	InvoiceTypeInventoryReduction InvoiceType = "INVENTORY_REDUCTION"
	InvoiceTypePrescription       InvoiceType = "PRESCRIPTION"
	InvoiceTypeRepack             InvoiceType = "REPACK"
)

// InvoiceStatus is the lifecycle status of an invoice. Statuses are ordered;
// a document never regresses to an earlier status. Cancelled is an orthogonal
// absorbing state.
type InvoiceStatus string

const (
	InvoiceStatusNew       InvoiceStatus = "NEW"
	InvoiceStatusAllocated InvoiceStatus = "ALLOCATED"
	InvoiceStatusPicked    InvoiceStatus = "PICKED"
	InvoiceStatusShipped   InvoiceStatus = "SHIPPED"
	InvoiceStatusDelivered InvoiceStatus = "DELIVERED"
	InvoiceStatusVerified  InvoiceStatus = "VERIFIED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

var invoiceStatusOrder = map[InvoiceStatus]int{
	InvoiceStatusNew:       0,
	InvoiceStatusAllocated: 1,
	InvoiceStatusPicked:    2,
	InvoiceStatusShipped:   3,
	InvoiceStatusDelivered: 4,
	InvoiceStatusVerified:  5,
}

// AtLeast reports whether s is at or past other in the lifecycle order.
// Cancelled is outside the order and never compares as reached.
func (s InvoiceStatus) AtLeast(other InvoiceStatus) bool {
	a, okA := invoiceStatusOrder[s]
	b, okB := invoiceStatusOrder[other]
	return okA && okB && a >= b
}

// Invoice is the generalized transferable document: an outbound shipment at
// one store mirrored by an inbound shipment at the receiving store.
type Invoice struct {
	ID                 string        `json:"id"`
	UserID             *string       `json:"user_id,omitempty"`
	StoreID            string        `json:"store_id"`
	NameLinkID         string        `json:"name_link_id"`
	NameStoreID        *string       `json:"name_store_id,omitempty"`
	InvoiceNumber      int64         `json:"invoice_number"`
	Type               InvoiceType   `json:"type"`
	Status             InvoiceStatus `json:"status"`
	OnHold             bool          `json:"on_hold"`
	Comment            *string       `json:"comment,omitempty"`
	TheirReference     *string       `json:"their_reference,omitempty"`
	Colour             *string       `json:"colour,omitempty"`
	Tax                *float64      `json:"tax,omitempty"`
	CurrencyID         *string       `json:"currency_id,omitempty"`
	CurrencyRate       float64       `json:"currency_rate"`
	RequisitionID      *string       `json:"requisition_id,omitempty"`
	LinkedInvoiceID    *string       `json:"linked_invoice_id,omitempty"`
	TransportReference *string       `json:"transport_reference,omitempty"`

	// One timestamp per status transition, set exactly once.
	CreatedDatetime   time.Time  `json:"created_datetime"`
	AllocatedDatetime *time.Time `json:"allocated_datetime,omitempty"`
	PickedDatetime    *time.Time `json:"picked_datetime,omitempty"`
	ShippedDatetime   *time.Time `json:"shipped_datetime,omitempty"`
	DeliveredDatetime *time.Time `json:"delivered_datetime,omitempty"`
	VerifiedDatetime  *time.Time `json:"verified_datetime,omitempty"`
	CancelledDatetime *time.Time `json:"cancelled_datetime,omitempty"`

	// Best effort repair for legacy records whose pick date precedes entry date.
	BackdatedDatetime *time.Time `json:"backdated_datetime,omitempty"`
}

// InvoiceLineType discriminates the kinds of invoice lines.
type InvoiceLineType string

const (
	InvoiceLineTypeStockIn          InvoiceLineType = "STOCK_IN"
	InvoiceLineTypeStockOut         InvoiceLineType = "STOCK_OUT"
	InvoiceLineTypeService          InvoiceLineType = "SERVICE"
	InvoiceLineTypeUnallocatedStock InvoiceLineType = "UNALLOCATED_STOCK"
)

// InvoiceLine is a single stock movement line on an invoice.
type InvoiceLine struct {
	ID               string          `json:"id"`
	InvoiceID        string          `json:"invoice_id"`
	ItemID           string          `json:"item_id"`
	ItemName         string          `json:"item_name"`
	ItemCode         string          `json:"item_code"`
	Batch            *string         `json:"batch,omitempty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	PackSize         float64         `json:"pack_size"`
	NumberOfPacks    float64         `json:"number_of_packs"`
	CostPricePerPack float64         `json:"cost_price_per_pack"`
	SellPricePerPack float64         `json:"sell_price_per_pack"`
	TotalBeforeTax   float64         `json:"total_before_tax"`
	Type             InvoiceLineType `json:"type"`
	Note             *string         `json:"note,omitempty"`
	LinkedInvoiceID  *string         `json:"linked_invoice_id,omitempty"`
}
