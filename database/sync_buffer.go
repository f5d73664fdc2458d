package database

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel"

	"github.com/storesync/storesync/model"
)

// UpsertSyncBufferRows stages a batch of raw incoming legacy records. A record
// pulled again replaces the previous copy and clears any prior integration state.
func (d Datasource) UpsertSyncBufferRows(ctx context.Context, rows []model.SyncBufferRow) error {
	ctx, span := otel.Tracer("SyncBuffer").Start(ctx, "Staging incoming sync records")
	defer span.End()

	return d.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sync_buffer (table_name, record_id, action, data, received_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (table_name, record_id) DO UPDATE SET
					action = EXCLUDED.action,
					data = EXCLUDED.data,
					received_at = EXCLUDED.received_at,
					integration_at = NULL,
					integration_error = NULL
			`, row.TableName, row.RecordID, row.Action, row.Data, row.ReceivedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// UnintegratedSyncBufferRows returns the buffered records for a table that have
// not yet been successfully integrated, oldest first.
func (d Datasource) UnintegratedSyncBufferRows(ctx context.Context, tableName string) ([]model.SyncBufferRow, error) {
	ctx, span := otel.Tracer("SyncBuffer").Start(ctx, "Fetching unintegrated sync records")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT table_name, record_id, action, data, received_at, integration_at, integration_error
		FROM sync_buffer
		WHERE table_name = $1 AND integration_at IS NULL
		ORDER BY received_at ASC
	`, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.SyncBufferRow
	for rows.Next() {
		var row model.SyncBufferRow
		var integrationAt sql.NullTime
		var integrationError sql.NullString
		err = rows.Scan(
			&row.TableName, &row.RecordID, &row.Action, &row.Data,
			&row.ReceivedAt, &integrationAt, &integrationError,
		)
		if err != nil {
			return nil, err
		}
		if integrationAt.Valid {
			t := integrationAt.Time
			row.IntegrationAt = &t
		}
		if integrationError.Valid {
			row.IntegrationError = &integrationError.String
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// RecordSyncBufferSuccess marks a buffered record as integrated.
func (d Datasource) RecordSyncBufferSuccess(ctx context.Context, tableName, recordID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE sync_buffer
		SET integration_at = NOW(), integration_error = NULL
		WHERE table_name = $1 AND record_id = $2
	`, tableName, recordID)
	return err
}

// RecordSyncBufferError keeps the record parked with the failure reason so it
// can be retried on the next pass or inspected.
func (d Datasource) RecordSyncBufferError(ctx context.Context, tableName, recordID string, integrationError error) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE sync_buffer
		SET integration_error = $3
		WHERE table_name = $1 AND record_id = $2
	`, tableName, recordID, integrationError.Error())
	return err
}
