package database

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel"

	"github.com/storesync/storesync/model"
)

// GetName retrieves a name (party) by id. Returns nil when not found.
func (d Datasource) GetName(ctx context.Context, id string) (*model.Name, error) {
	ctx, span := otel.Tracer("Party").Start(ctx, "Fetching name from db")
	defer span.End()

	name := &model.Name{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, code, name, is_customer, is_supplier, is_store
		FROM name WHERE id = $1
	`, id).Scan(&name.ID, &name.Code, &name.Name, &name.IsCustomer, &name.IsSupplier, &name.IsStore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return name, nil
}

// UpsertName inserts or replaces a name and ensures its self referencing
// name_link row exists. Merges repoint existing links at the surviving name,
// so the self link is only ever inserted, never updated.
func (d Datasource) UpsertName(ctx context.Context, tx *sql.Tx, name *model.Name) error {
	ctx, span := otel.Tracer("Party").Start(ctx, "Saving name to db")
	defer span.End()

	r := d.runner(tx)
	_, err := r.ExecContext(ctx, `
		INSERT INTO name (id, code, name, is_customer, is_supplier, is_store)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			is_customer = EXCLUDED.is_customer,
			is_supplier = EXCLUDED.is_supplier,
			is_store = EXCLUDED.is_store
	`, name.ID, name.Code, name.Name, name.IsCustomer, name.IsSupplier, name.IsStore)
	if err != nil {
		return err
	}

	_, err = r.ExecContext(ctx, `
		INSERT INTO name_link (id, name_id) VALUES ($1, $1)
		ON CONFLICT (id) DO NOTHING
	`, name.ID)
	return err
}

// DeleteName removes a name and its links.
func (d Datasource) DeleteName(ctx context.Context, tx *sql.Tx, id string) error {
	r := d.runner(tx)
	if _, err := r.ExecContext(ctx, `DELETE FROM name_link WHERE name_id = $1`, id); err != nil {
		return err
	}
	_, err := r.ExecContext(ctx, `DELETE FROM name WHERE id = $1`, id)
	return err
}

// ResolveNameLink follows the merge indirection from a name link id to the
// current surviving name id. An unlinked id resolves to itself so callers can
// pass ids from records that predate link rows.
func (d Datasource) ResolveNameLink(ctx context.Context, nameLinkID string) (string, error) {
	var nameID string
	err := d.Conn.QueryRowContext(ctx,
		`SELECT name_id FROM name_link WHERE id = $1`, nameLinkID).Scan(&nameID)
	if err == sql.ErrNoRows {
		return nameLinkID, nil
	}
	if err != nil {
		return "", err
	}
	return nameID, nil
}

// GetStore retrieves a store by id. Returns nil when not found.
func (d Datasource) GetStore(ctx context.Context, id string) (*model.Store, error) {
	ctx, span := otel.Tracer("Party").Start(ctx, "Fetching store from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, name_id, code, site_id, created_date FROM store WHERE id = $1
	`, id)
	return scanStore(row)
}

// GetStoreByNameID retrieves the store whose name record is the given name,
// i.e. answers whether a party is itself a store.
func (d Datasource) GetStoreByNameID(ctx context.Context, nameID string) (*model.Store, error) {
	ctx, span := otel.Tracer("Party").Start(ctx, "Fetching store by name from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, name_id, code, site_id, created_date FROM store WHERE name_id = $1
	`, nameID)
	return scanStore(row)
}

func scanStore(row *sql.Row) (*model.Store, error) {
	store := &model.Store{}
	var createdDate sql.NullTime
	err := row.Scan(&store.ID, &store.NameID, &store.Code, &store.SiteID, &createdDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if createdDate.Valid {
		t := createdDate.Time
		store.CreatedDate = &t
	}
	return store, nil
}

// UpsertStore inserts or replaces a store row.
func (d Datasource) UpsertStore(ctx context.Context, tx *sql.Tx, store *model.Store) error {
	ctx, span := otel.Tracer("Party").Start(ctx, "Saving store to db")
	defer span.End()

	_, err := d.runner(tx).ExecContext(ctx, `
		INSERT INTO store (id, name_id, code, site_id, created_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name_id = EXCLUDED.name_id,
			code = EXCLUDED.code,
			site_id = EXCLUDED.site_id,
			created_date = EXCLUDED.created_date
	`, store.ID, store.NameID, store.Code, store.SiteID, store.CreatedDate)
	return err
}

// ActiveStoresOnSite lists the stores hosted on the given site.
func (d Datasource) ActiveStoresOnSite(ctx context.Context, siteID int32) ([]model.Store, error) {
	ctx, span := otel.Tracer("Party").Start(ctx, "Fetching site stores from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, name_id, code, site_id, created_date FROM store WHERE site_id = $1 ORDER BY code
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		var store model.Store
		var createdDate sql.NullTime
		if err := rows.Scan(&store.ID, &store.NameID, &store.Code, &store.SiteID, &createdDate); err != nil {
			return nil, err
		}
		if createdDate.Valid {
			t := createdDate.Time
			store.CreatedDate = &t
		}
		stores = append(stores, store)
	}
	return stores, rows.Err()
}

// UserExists reports whether a user account row exists.
func (d Datasource) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_account WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// InsertPlaceholderUser creates a minimal user row so documents that arrive
// before their author can still satisfy the user foreign key.
func (d Datasource) InsertPlaceholderUser(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := d.runner(tx).ExecContext(ctx, `
		INSERT INTO user_account (id, username, placeholder)
		VALUES ($1, $1, TRUE)
		ON CONFLICT (id) DO NOTHING
	`, id)
	return err
}
