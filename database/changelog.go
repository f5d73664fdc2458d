package database

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/storesync/storesync/model"
)

// Changelogs returns changelog entries ordered by cursor ascending, starting
// at (and including) cursor, limited to limit rows.
func (d Datasource) Changelogs(ctx context.Context, cursor int64, limit int, filter *model.ChangelogFilter) ([]model.ChangelogEntry, error) {
	ctx, span := otel.Tracer("Changelog").Start(ctx, "Fetching changelog entries")
	defer span.End()

	query := `
		SELECT cursor, table_name, record_id, row_action, name_id, store_id, is_sync_update, source_site_id
		FROM changelog
		WHERE cursor >= $1`
	args := []interface{}{cursor}

	if filter != nil && len(filter.TableNames) > 0 {
		tables := make([]string, 0, len(filter.TableNames))
		for _, t := range filter.TableNames {
			tables = append(tables, string(t))
		}
		args = append(args, pq.Array(tables))
		query += ` AND table_name = ANY($2)`
	}
	if filter != nil && len(filter.NameIDs) > 0 {
		// Matches through the merge indirection: an entry recorded under a
		// merged-away party id still matches its surviving name.
		args = append(args, pq.Array(filter.NameIDs))
		query += ` AND name_id IN (SELECT id FROM name_link WHERE name_id = ANY($` + strconv.Itoa(len(args)) + `))`
	}
	args = append(args, limit)
	query += ` ORDER BY cursor ASC LIMIT $` + strconv.Itoa(len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ChangelogEntry
	for rows.Next() {
		var entry model.ChangelogEntry
		var nameID, storeID sql.NullString
		var sourceSiteID sql.NullInt32
		err = rows.Scan(
			&entry.Cursor, &entry.TableName, &entry.RecordID, &entry.RowAction,
			&nameID, &storeID, &entry.IsSyncUpdate, &sourceSiteID,
		)
		if err != nil {
			return nil, err
		}
		if nameID.Valid {
			entry.NameID = &nameID.String
		}
		if storeID.Valid {
			entry.StoreID = &storeID.String
		}
		if sourceSiteID.Valid {
			v := sourceSiteID.Int32
			entry.SourceSiteID = &v
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LatestCursor returns the highest assigned cursor, or 0 when the changelog is empty.
func (d Datasource) LatestCursor(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("Changelog").Start(ctx, "Fetching latest changelog cursor")
	defer span.End()

	var cursor sql.NullInt64
	err := d.Conn.QueryRowContext(ctx, `SELECT MAX(cursor) FROM changelog`).Scan(&cursor)
	if err != nil {
		return 0, err
	}
	return cursor.Int64, nil
}
