package database

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel"

	"github.com/storesync/storesync/model"
)

const requisitionColumns = `
	id, requisition_number, store_id, name_link_id, user_id, type, status,
	comment, their_reference, max_months_of_stock, min_months_of_stock,
	linked_requisition_id, created_datetime, sent_datetime, finalised_datetime`

// GetRequisition retrieves a requisition by id. Returns nil when not found.
func (d Datasource) GetRequisition(ctx context.Context, id string) (*model.Requisition, error) {
	ctx, span := otel.Tracer("Requisition").Start(ctx, "Fetching requisition from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT `+requisitionColumns+` FROM requisition WHERE id = $1`, id)
	return scanRequisition(row)
}

// GetRequisitionByLinkedRequisitionID retrieves the mirror half of a
// requisition pair.
func (d Datasource) GetRequisitionByLinkedRequisitionID(ctx context.Context, linkedRequisitionID string) (*model.Requisition, error) {
	ctx, span := otel.Tracer("Requisition").Start(ctx, "Fetching linked requisition from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT `+requisitionColumns+` FROM requisition WHERE linked_requisition_id = $1`, linkedRequisitionID)
	return scanRequisition(row)
}

func scanRequisition(row *sql.Row) (*model.Requisition, error) {
	req := &model.Requisition{}
	var userID, comment, theirRef, linkedID sql.NullString
	var sent, finalised sql.NullTime

	err := row.Scan(
		&req.ID, &req.RequisitionNumber, &req.StoreID, &req.NameLinkID, &userID,
		&req.Type, &req.Status, &comment, &theirRef,
		&req.MaxMonthsOfStock, &req.MinMonthsOfStock, &linkedID,
		&req.CreatedDatetime, &sent, &finalised,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	req.UserID = nullStr(userID)
	req.Comment = nullStr(comment)
	req.TheirReference = nullStr(theirRef)
	req.LinkedRequisitionID = nullStr(linkedID)
	req.SentDatetime = nullTime(sent)
	req.FinalisedDatetime = nullTime(finalised)
	return req, nil
}

// UpsertRequisition inserts or replaces a requisition row.
func (d Datasource) UpsertRequisition(ctx context.Context, tx *sql.Tx, req *model.Requisition) error {
	ctx, span := otel.Tracer("Requisition").Start(ctx, "Saving requisition to db")
	defer span.End()

	_, err := d.runner(tx).ExecContext(ctx, `
		INSERT INTO requisition (`+requisitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			requisition_number = EXCLUDED.requisition_number,
			store_id = EXCLUDED.store_id,
			name_link_id = EXCLUDED.name_link_id,
			user_id = EXCLUDED.user_id,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			comment = EXCLUDED.comment,
			their_reference = EXCLUDED.their_reference,
			max_months_of_stock = EXCLUDED.max_months_of_stock,
			min_months_of_stock = EXCLUDED.min_months_of_stock,
			linked_requisition_id = EXCLUDED.linked_requisition_id,
			created_datetime = EXCLUDED.created_datetime,
			sent_datetime = EXCLUDED.sent_datetime,
			finalised_datetime = EXCLUDED.finalised_datetime
	`,
		req.ID, req.RequisitionNumber, req.StoreID, req.NameLinkID, req.UserID,
		req.Type, req.Status, req.Comment, req.TheirReference,
		req.MaxMonthsOfStock, req.MinMonthsOfStock, req.LinkedRequisitionID,
		req.CreatedDatetime, req.SentDatetime, req.FinalisedDatetime,
	)
	return err
}

// DeleteRequisition removes a requisition row; its lines cascade.
func (d Datasource) DeleteRequisition(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := d.runner(tx).ExecContext(ctx, `DELETE FROM requisition WHERE id = $1`, id)
	return err
}

// GetRequisitionLine retrieves a single line by id. Returns nil when not found.
func (d Datasource) GetRequisitionLine(ctx context.Context, id string) (*model.RequisitionLine, error) {
	var line model.RequisitionLine
	var comment sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, requisition_id, item_id, requested_quantity, suggested_quantity,
			supply_quantity, available_stock_on_hand, comment
		FROM requisition_line
		WHERE id = $1
	`, id).Scan(
		&line.ID, &line.RequisitionID, &line.ItemID,
		&line.RequestedQuantity, &line.SuggestedQuantity,
		&line.SupplyQuantity, &line.AvailableStockOnHand, &comment,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	line.Comment = nullStr(comment)
	return &line, nil
}

// GetRequisitionLines retrieves all lines for a requisition.
func (d Datasource) GetRequisitionLines(ctx context.Context, requisitionID string) ([]model.RequisitionLine, error) {
	ctx, span := otel.Tracer("Requisition").Start(ctx, "Fetching requisition lines from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, requisition_id, item_id, requested_quantity, suggested_quantity,
			supply_quantity, available_stock_on_hand, comment
		FROM requisition_line
		WHERE requisition_id = $1
		ORDER BY id
	`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []model.RequisitionLine
	for rows.Next() {
		var line model.RequisitionLine
		var comment sql.NullString
		err = rows.Scan(
			&line.ID, &line.RequisitionID, &line.ItemID,
			&line.RequestedQuantity, &line.SuggestedQuantity,
			&line.SupplyQuantity, &line.AvailableStockOnHand, &comment,
		)
		if err != nil {
			return nil, err
		}
		line.Comment = nullStr(comment)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpsertRequisitionLine inserts or replaces a requisition line.
func (d Datasource) UpsertRequisitionLine(ctx context.Context, tx *sql.Tx, line *model.RequisitionLine) error {
	_, err := d.runner(tx).ExecContext(ctx, `
		INSERT INTO requisition_line (
			id, requisition_id, item_id, requested_quantity, suggested_quantity,
			supply_quantity, available_stock_on_hand, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			requisition_id = EXCLUDED.requisition_id,
			item_id = EXCLUDED.item_id,
			requested_quantity = EXCLUDED.requested_quantity,
			suggested_quantity = EXCLUDED.suggested_quantity,
			supply_quantity = EXCLUDED.supply_quantity,
			available_stock_on_hand = EXCLUDED.available_stock_on_hand,
			comment = EXCLUDED.comment
	`,
		line.ID, line.RequisitionID, line.ItemID,
		line.RequestedQuantity, line.SuggestedQuantity,
		line.SupplyQuantity, line.AvailableStockOnHand, line.Comment,
	)
	return err
}

// DeleteRequisitionLine removes a single requisition line.
func (d Datasource) DeleteRequisitionLine(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := d.runner(tx).ExecContext(ctx, `DELETE FROM requisition_line WHERE id = $1`, id)
	return err
}
