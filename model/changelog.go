package model

import "time"

// RowAction is the kind of row mutation recorded in the changelog.
type RowAction string

const (
	RowActionUpsert RowAction = "UPSERT"
	RowActionDelete RowAction = "DELETE"
)

// TableName identifies a tracked domain table in the changelog.
type TableName string

const (
	TableNameName            TableName = "name"
	TableNameStore           TableName = "store"
	TableNameInvoice         TableName = "invoice"
	TableNameInvoiceLine     TableName = "invoice_line"
	TableNameRequisition     TableName = "requisition"
	TableNameRequisitionLine TableName = "requisition_line"
)

// ChangelogEntry is a single row mutation in the append-only changelog.
// Cursors are assigned by the database, strictly increasing, never reused.
// IsSyncUpdate marks mutations that were themselves produced by integrating
// a pulled sync record, so the push engine can avoid re-push loops.
type ChangelogEntry struct {
	Cursor       int64     `json:"cursor"`
	TableName    TableName `json:"table_name"`
	RecordID     string    `json:"record_id"`
	RowAction    RowAction `json:"row_action"`
	NameID       *string   `json:"name_id,omitempty"`
	StoreID      *string   `json:"store_id,omitempty"`
	IsSyncUpdate bool      `json:"is_sync_update"`
	SourceSiteID *int32    `json:"source_site_id,omitempty"`
}

// ChangelogFilter narrows a changelog query. A nil field means "any".
type ChangelogFilter struct {
	TableNames []TableName
	NameIDs    []string
}

// SyncAction mirrors RowAction on the sync buffer side.
type SyncAction string

const (
	SyncActionUpsert SyncAction = "UPSERT"
	SyncActionDelete SyncAction = "DELETE"
)

// SyncBufferRow is a raw incoming legacy record staged for integration.
// Receipt is decoupled from translation so a failing record can be retried
// or inspected without losing it.
type SyncBufferRow struct {
	TableName        string     `json:"table_name"`
	RecordID         string     `json:"record_id"`
	Action           SyncAction `json:"action"`
	Data             string     `json:"data"`
	ReceivedAt       time.Time  `json:"received_at"`
	IntegrationAt    *time.Time `json:"integration_at,omitempty"`
	IntegrationError *string    `json:"integration_error,omitempty"`
}
