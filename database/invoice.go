package database

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/storesync/storesync/model"
)

// runner abstracts over *sql.DB and *sql.Tx so repository writes can join an
// enclosing transaction.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (d Datasource) runner(tx *sql.Tx) runner {
	if tx != nil {
		return tx
	}
	return d.Conn
}

const invoiceColumns = `
	id, user_id, store_id, name_link_id, name_store_id, invoice_number, type, status,
	on_hold, comment, their_reference, colour, tax, currency_id, currency_rate,
	requisition_id, linked_invoice_id, transport_reference,
	created_datetime, allocated_datetime, picked_datetime, shipped_datetime,
	delivered_datetime, verified_datetime, cancelled_datetime, backdated_datetime`

// GetInvoice retrieves an invoice by id. Returns nil when not found.
func (d Datasource) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	ctx, span := otel.Tracer("Invoice").Start(ctx, "Fetching invoice from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoice WHERE id = $1`, id)
	return scanInvoice(row)
}

// GetInvoiceByLinkedInvoiceID retrieves the invoice whose linked_invoice_id
// points at the given id, i.e. the mirror half of a transfer pair.
func (d Datasource) GetInvoiceByLinkedInvoiceID(ctx context.Context, linkedInvoiceID string) (*model.Invoice, error) {
	ctx, span := otel.Tracer("Invoice").Start(ctx, "Fetching linked invoice from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoice WHERE linked_invoice_id = $1`, linkedInvoiceID)
	return scanInvoice(row)
}

func scanInvoice(row *sql.Row) (*model.Invoice, error) {
	inv := &model.Invoice{}
	var userID, nameStoreID, comment, theirRef, colour, currencyID, requisitionID, linkedInvoiceID, transportRef sql.NullString
	var tax sql.NullFloat64
	var allocated, picked, shipped, delivered, verified, cancelled, backdated sql.NullTime

	err := row.Scan(
		&inv.ID, &userID, &inv.StoreID, &inv.NameLinkID, &nameStoreID,
		&inv.InvoiceNumber, &inv.Type, &inv.Status, &inv.OnHold, &comment,
		&theirRef, &colour, &tax, &currencyID, &inv.CurrencyRate,
		&requisitionID, &linkedInvoiceID, &transportRef,
		&inv.CreatedDatetime, &allocated, &picked, &shipped,
		&delivered, &verified, &cancelled, &backdated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	inv.UserID = nullStr(userID)
	inv.NameStoreID = nullStr(nameStoreID)
	inv.Comment = nullStr(comment)
	inv.TheirReference = nullStr(theirRef)
	inv.Colour = nullStr(colour)
	inv.CurrencyID = nullStr(currencyID)
	inv.RequisitionID = nullStr(requisitionID)
	inv.LinkedInvoiceID = nullStr(linkedInvoiceID)
	inv.TransportReference = nullStr(transportRef)
	if tax.Valid {
		inv.Tax = &tax.Float64
	}
	inv.AllocatedDatetime = nullTime(allocated)
	inv.PickedDatetime = nullTime(picked)
	inv.ShippedDatetime = nullTime(shipped)
	inv.DeliveredDatetime = nullTime(delivered)
	inv.VerifiedDatetime = nullTime(verified)
	inv.CancelledDatetime = nullTime(cancelled)
	inv.BackdatedDatetime = nullTime(backdated)
	return inv, nil
}

// UpsertInvoice inserts or replaces an invoice row.
func (d Datasource) UpsertInvoice(ctx context.Context, tx *sql.Tx, inv *model.Invoice) error {
	ctx, span := otel.Tracer("Invoice").Start(ctx, "Saving invoice to db")
	defer span.End()

	_, err := d.runner(tx).ExecContext(ctx, `
		INSERT INTO invoice (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			store_id = EXCLUDED.store_id,
			name_link_id = EXCLUDED.name_link_id,
			name_store_id = EXCLUDED.name_store_id,
			invoice_number = EXCLUDED.invoice_number,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			on_hold = EXCLUDED.on_hold,
			comment = EXCLUDED.comment,
			their_reference = EXCLUDED.their_reference,
			colour = EXCLUDED.colour,
			tax = EXCLUDED.tax,
			currency_id = EXCLUDED.currency_id,
			currency_rate = EXCLUDED.currency_rate,
			requisition_id = EXCLUDED.requisition_id,
			linked_invoice_id = EXCLUDED.linked_invoice_id,
			transport_reference = EXCLUDED.transport_reference,
			created_datetime = EXCLUDED.created_datetime,
			allocated_datetime = EXCLUDED.allocated_datetime,
			picked_datetime = EXCLUDED.picked_datetime,
			shipped_datetime = EXCLUDED.shipped_datetime,
			delivered_datetime = EXCLUDED.delivered_datetime,
			verified_datetime = EXCLUDED.verified_datetime,
			cancelled_datetime = EXCLUDED.cancelled_datetime,
			backdated_datetime = EXCLUDED.backdated_datetime
	`,
		inv.ID, inv.UserID, inv.StoreID, inv.NameLinkID, inv.NameStoreID,
		inv.InvoiceNumber, inv.Type, inv.Status, inv.OnHold, inv.Comment,
		inv.TheirReference, inv.Colour, inv.Tax, inv.CurrencyID, inv.CurrencyRate,
		inv.RequisitionID, inv.LinkedInvoiceID, inv.TransportReference,
		inv.CreatedDatetime, inv.AllocatedDatetime, inv.PickedDatetime,
		inv.ShippedDatetime, inv.DeliveredDatetime, inv.VerifiedDatetime,
		inv.CancelledDatetime, inv.BackdatedDatetime,
	)
	return err
}

// DeleteInvoice removes an invoice row; its lines cascade.
func (d Datasource) DeleteInvoice(ctx context.Context, tx *sql.Tx, id string) error {
	ctx, span := otel.Tracer("Invoice").Start(ctx, "Deleting invoice from db")
	defer span.End()

	_, err := d.runner(tx).ExecContext(ctx, `DELETE FROM invoice WHERE id = $1`, id)
	return err
}

// GetInvoiceLine retrieves a single line by id. Returns nil when not found.
func (d Datasource) GetInvoiceLine(ctx context.Context, id string) (*model.InvoiceLine, error) {
	var line model.InvoiceLine
	var batch, note, linkedInvoiceID sql.NullString
	var expiry sql.NullTime
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, invoice_id, item_id, item_name, item_code, batch, expiry_date,
			pack_size, number_of_packs, cost_price_per_pack, sell_price_per_pack,
			total_before_tax, type, note, linked_invoice_id
		FROM invoice_line
		WHERE id = $1
	`, id).Scan(
		&line.ID, &line.InvoiceID, &line.ItemID, &line.ItemName, &line.ItemCode,
		&batch, &expiry, &line.PackSize, &line.NumberOfPacks,
		&line.CostPricePerPack, &line.SellPricePerPack, &line.TotalBeforeTax,
		&line.Type, &note, &linkedInvoiceID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	line.Batch = nullStr(batch)
	line.Note = nullStr(note)
	line.LinkedInvoiceID = nullStr(linkedInvoiceID)
	line.ExpiryDate = nullTime(expiry)
	return &line, nil
}

// GetInvoiceLines retrieves all lines for an invoice.
func (d Datasource) GetInvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error) {
	ctx, span := otel.Tracer("Invoice").Start(ctx, "Fetching invoice lines from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, invoice_id, item_id, item_name, item_code, batch, expiry_date,
			pack_size, number_of_packs, cost_price_per_pack, sell_price_per_pack,
			total_before_tax, type, note, linked_invoice_id
		FROM invoice_line
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []model.InvoiceLine
	for rows.Next() {
		var line model.InvoiceLine
		var batch, note, linkedInvoiceID sql.NullString
		var expiry sql.NullTime
		err = rows.Scan(
			&line.ID, &line.InvoiceID, &line.ItemID, &line.ItemName, &line.ItemCode,
			&batch, &expiry, &line.PackSize, &line.NumberOfPacks,
			&line.CostPricePerPack, &line.SellPricePerPack, &line.TotalBeforeTax,
			&line.Type, &note, &linkedInvoiceID,
		)
		if err != nil {
			return nil, err
		}
		line.Batch = nullStr(batch)
		line.Note = nullStr(note)
		line.LinkedInvoiceID = nullStr(linkedInvoiceID)
		line.ExpiryDate = nullTime(expiry)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpsertInvoiceLine inserts or replaces an invoice line.
func (d Datasource) UpsertInvoiceLine(ctx context.Context, tx *sql.Tx, line *model.InvoiceLine) error {
	_, err := d.runner(tx).ExecContext(ctx, `
		INSERT INTO invoice_line (
			id, invoice_id, item_id, item_name, item_code, batch, expiry_date,
			pack_size, number_of_packs, cost_price_per_pack, sell_price_per_pack,
			total_before_tax, type, note, linked_invoice_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			invoice_id = EXCLUDED.invoice_id,
			item_id = EXCLUDED.item_id,
			item_name = EXCLUDED.item_name,
			item_code = EXCLUDED.item_code,
			batch = EXCLUDED.batch,
			expiry_date = EXCLUDED.expiry_date,
			pack_size = EXCLUDED.pack_size,
			number_of_packs = EXCLUDED.number_of_packs,
			cost_price_per_pack = EXCLUDED.cost_price_per_pack,
			sell_price_per_pack = EXCLUDED.sell_price_per_pack,
			total_before_tax = EXCLUDED.total_before_tax,
			type = EXCLUDED.type,
			note = EXCLUDED.note,
			linked_invoice_id = EXCLUDED.linked_invoice_id
	`,
		line.ID, line.InvoiceID, line.ItemID, line.ItemName, line.ItemCode,
		line.Batch, line.ExpiryDate, line.PackSize, line.NumberOfPacks,
		line.CostPricePerPack, line.SellPricePerPack, line.TotalBeforeTax,
		line.Type, line.Note, line.LinkedInvoiceID,
	)
	return err
}

// DeleteInvoiceLine removes a single invoice line.
func (d Datasource) DeleteInvoiceLine(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := d.runner(tx).ExecContext(ctx, `DELETE FROM invoice_line WHERE id = $1`, id)
	return err
}

// NextNumber yields the next value of a per-store document number sequence.
func (d Datasource) NextNumber(ctx context.Context, tx *sql.Tx, numberType string, storeID string) (int64, error) {
	var value int64
	err := d.runner(tx).QueryRowContext(ctx, `
		INSERT INTO number (type, store_id, value) VALUES ($1, $2, 1)
		ON CONFLICT (type, store_id) DO UPDATE SET value = number.value + 1
		RETURNING value
	`, numberType, storeID).Scan(&value)
	return value, err
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
