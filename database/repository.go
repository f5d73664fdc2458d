package database

import (
	"context"
	"database/sql"

	"github.com/storesync/storesync/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	changelog
	cursor
	syncBuffer
	invoice
	requisition
	party

	// WithTransaction runs fn inside a single database transaction. All
	// multi-row mutations for one document transition go through here so a
	// partially applied transition is never observable.
	WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// changelog defines methods for reading the append-only changelog.
type changelog interface {
	Changelogs(ctx context.Context, cursor int64, limit int, filter *model.ChangelogFilter) ([]model.ChangelogEntry, error) // Entries ordered by cursor ascending, inclusive of cursor
	LatestCursor(ctx context.Context) (int64, error)                                                                        // Highest assigned cursor, 0 when empty
}

// cursor defines the persistent key/value cursor store. Each consumer owns
// exactly one key and is the only writer of it.
type cursor interface {
	GetCursor(ctx context.Context, key string) (int64, bool, error)
	SetCursor(ctx context.Context, key string, value int64) error
}

// syncBuffer defines methods for the incoming sync record staging area.
type syncBuffer interface {
	UpsertSyncBufferRows(ctx context.Context, rows []model.SyncBufferRow) error
	UnintegratedSyncBufferRows(ctx context.Context, tableName string) ([]model.SyncBufferRow, error)
	RecordSyncBufferSuccess(ctx context.Context, tableName, recordID string) error
	RecordSyncBufferError(ctx context.Context, tableName, recordID string, integrationError error) error
}

// invoice defines methods for invoice documents and their lines.
type invoice interface {
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	GetInvoiceByLinkedInvoiceID(ctx context.Context, linkedInvoiceID string) (*model.Invoice, error)
	UpsertInvoice(ctx context.Context, tx *sql.Tx, inv *model.Invoice) error
	DeleteInvoice(ctx context.Context, tx *sql.Tx, id string) error
	GetInvoiceLine(ctx context.Context, id string) (*model.InvoiceLine, error)
	GetInvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error)
	UpsertInvoiceLine(ctx context.Context, tx *sql.Tx, line *model.InvoiceLine) error
	DeleteInvoiceLine(ctx context.Context, tx *sql.Tx, id string) error
	NextNumber(ctx context.Context, tx *sql.Tx, numberType string, storeID string) (int64, error)
}

// requisition defines methods for requisition documents and their lines.
type requisition interface {
	GetRequisition(ctx context.Context, id string) (*model.Requisition, error)
	GetRequisitionByLinkedRequisitionID(ctx context.Context, linkedRequisitionID string) (*model.Requisition, error)
	UpsertRequisition(ctx context.Context, tx *sql.Tx, req *model.Requisition) error
	DeleteRequisition(ctx context.Context, tx *sql.Tx, id string) error
	GetRequisitionLine(ctx context.Context, id string) (*model.RequisitionLine, error)
	GetRequisitionLines(ctx context.Context, requisitionID string) ([]model.RequisitionLine, error)
	UpsertRequisitionLine(ctx context.Context, tx *sql.Tx, line *model.RequisitionLine) error
	DeleteRequisitionLine(ctx context.Context, tx *sql.Tx, id string) error
}

// party defines methods for names (parties), stores, name merge links and users.
type party interface {
	GetName(ctx context.Context, id string) (*model.Name, error)
	UpsertName(ctx context.Context, tx *sql.Tx, name *model.Name) error
	DeleteName(ctx context.Context, tx *sql.Tx, id string) error
	ResolveNameLink(ctx context.Context, nameLinkID string) (string, error) // Resolves a possibly merged id to the current name id
	GetStore(ctx context.Context, id string) (*model.Store, error)
	GetStoreByNameID(ctx context.Context, nameID string) (*model.Store, error)
	UpsertStore(ctx context.Context, tx *sql.Tx, store *model.Store) error
	ActiveStoresOnSite(ctx context.Context, siteID int32) ([]model.Store, error)
	UserExists(ctx context.Context, id string) (bool, error)
	InsertPlaceholderUser(ctx context.Context, tx *sql.Tx, id string) error
}
