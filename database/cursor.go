package database

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel"
)

// Consumer keys for the cursor store. Each consumer owns exactly one key.
const (
	CursorKeyPull                = "pull_cursor"
	CursorKeyPush                = "push_cursor"
	CursorKeyInvoiceTransfer     = "invoice_transfer_processor_cursor"
	CursorKeyRequisitionTransfer = "requisition_transfer_processor_cursor"
)

// GetCursor reads a consumer's saved cursor. The second return value is false
// when the consumer has never saved one.
func (d Datasource) GetCursor(ctx context.Context, key string) (int64, bool, error) {
	ctx, span := otel.Tracer("Cursor").Start(ctx, "Fetching sync cursor")
	defer span.End()

	var value int64
	err := d.Conn.QueryRowContext(ctx,
		`SELECT value_bigint FROM key_value_store WHERE key = $1`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// SetCursor saves a consumer's cursor. Written only after a batch is durably applied.
func (d Datasource) SetCursor(ctx context.Context, key string, value int64) error {
	ctx, span := otel.Tracer("Cursor").Start(ctx, "Saving sync cursor")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO key_value_store (key, value_bigint) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value_bigint = EXCLUDED.value_bigint
	`, key, value)
	return err
}
