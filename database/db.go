package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/storesync/storesync/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = Migrate(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the storesync tables and the changelog trigger machinery.
func Migrate(db *sql.DB) error {
	steps := []func(*sql.DB) error{
		createNameTables,
		createUserTable,
		createInvoiceTables,
		createRequisitionTables,
		createChangelogTable,
		createSyncBufferTable,
		createKeyValueStoreTable,
		createNumberTable,
		createChangelogTriggers,
	}
	for _, step := range steps {
		if err := step(db); err != nil {
			return err
		}
	}
	return nil
}

// WithTransaction runs fn inside a single database transaction.
func (d Datasource) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("transaction rollback error: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Custom settings are untyped strings, so the trigger must compare against
// exactly the value MarkSyncUpdate stores.
const (
	syncUpdateSetting = "storesync.is_sync_update"
	syncUpdateValue   = "true"
)

// MarkSyncUpdate flags the current transaction so the changelog triggers
// record is_sync_update=true for every mutation in it. The flag is
// transaction-local and resets on commit. A nil tx (in-memory test doubles)
// is a no-op.
func MarkSyncUpdate(ctx context.Context, tx *sql.Tx) error {
	if tx == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `SELECT set_config($1, $2, true)`, syncUpdateSetting, syncUpdateValue)
	return err
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

func createChangelogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS changelog (
			cursor BIGSERIAL PRIMARY KEY,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			row_action TEXT NOT NULL CHECK (row_action IN ('UPSERT', 'DELETE')),
			name_id TEXT,
			store_id TEXT,
			is_sync_update BOOLEAN NOT NULL DEFAULT FALSE,
			source_site_id INTEGER
		)
	`)
	if err != nil {
		log.Printf("Error creating changelog table: %v", err)
	}
	return err
}

func createSyncBufferTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_buffer (
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			action TEXT NOT NULL CHECK (action IN ('UPSERT', 'DELETE')),
			data JSONB NOT NULL,
			received_at TIMESTAMP NOT NULL DEFAULT NOW(),
			integration_at TIMESTAMP,
			integration_error TEXT,
			PRIMARY KEY (table_name, record_id)
		)
	`)
	if err != nil {
		log.Printf("Error creating sync_buffer table: %v", err)
	}
	return err
}

func createKeyValueStoreTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS key_value_store (
			key TEXT PRIMARY KEY,
			value_bigint BIGINT
		)
	`)
	if err != nil {
		log.Printf("Error creating key_value_store table: %v", err)
	}
	return err
}

func createNumberTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS number (
			type TEXT NOT NULL,
			store_id TEXT NOT NULL,
			value BIGINT NOT NULL,
			PRIMARY KEY (type, store_id)
		)
	`)
	if err != nil {
		log.Printf("Error creating number table: %v", err)
	}
	return err
}

func createNameTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS name (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			is_customer BOOLEAN NOT NULL DEFAULT FALSE,
			is_supplier BOOLEAN NOT NULL DEFAULT FALSE,
			is_store BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS name_link (
			id TEXT PRIMARY KEY,
			name_id TEXT NOT NULL REFERENCES name(id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS store (
			id TEXT PRIMARY KEY,
			name_id TEXT NOT NULL REFERENCES name(id),
			code TEXT NOT NULL,
			site_id INTEGER NOT NULL,
			created_date TIMESTAMPTZ
		)
	`)
	return err
}

func createUserTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_account (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			placeholder BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	return err
}

func createInvoiceTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invoice (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			store_id TEXT NOT NULL,
			name_link_id TEXT NOT NULL,
			name_store_id TEXT,
			invoice_number BIGINT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			on_hold BOOLEAN NOT NULL DEFAULT FALSE,
			comment TEXT,
			their_reference TEXT,
			colour TEXT,
			tax DOUBLE PRECISION,
			currency_id TEXT,
			currency_rate DOUBLE PRECISION NOT NULL DEFAULT 1,
			requisition_id TEXT,
			linked_invoice_id TEXT,
			transport_reference TEXT,
			created_datetime TIMESTAMP NOT NULL,
			allocated_datetime TIMESTAMP,
			picked_datetime TIMESTAMP,
			shipped_datetime TIMESTAMP,
			delivered_datetime TIMESTAMP,
			verified_datetime TIMESTAMP,
			cancelled_datetime TIMESTAMP,
			backdated_datetime TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS invoice_line (
			id TEXT PRIMARY KEY,
			invoice_id TEXT NOT NULL REFERENCES invoice(id) ON DELETE CASCADE,
			item_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			item_code TEXT NOT NULL,
			batch TEXT,
			expiry_date TIMESTAMP,
			pack_size DOUBLE PRECISION NOT NULL DEFAULT 1,
			number_of_packs DOUBLE PRECISION NOT NULL DEFAULT 0,
			cost_price_per_pack DOUBLE PRECISION NOT NULL DEFAULT 0,
			sell_price_per_pack DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_before_tax DOUBLE PRECISION NOT NULL DEFAULT 0,
			type TEXT NOT NULL,
			note TEXT,
			linked_invoice_id TEXT
		)
	`)
	return err
}

func createRequisitionTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS requisition (
			id TEXT PRIMARY KEY,
			requisition_number BIGINT NOT NULL,
			store_id TEXT NOT NULL,
			name_link_id TEXT NOT NULL,
			user_id TEXT,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			comment TEXT,
			their_reference TEXT,
			max_months_of_stock DOUBLE PRECISION NOT NULL DEFAULT 0,
			min_months_of_stock DOUBLE PRECISION NOT NULL DEFAULT 0,
			linked_requisition_id TEXT,
			created_datetime TIMESTAMP NOT NULL,
			sent_datetime TIMESTAMP,
			finalised_datetime TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS requisition_line (
			id TEXT PRIMARY KEY,
			requisition_id TEXT NOT NULL REFERENCES requisition(id) ON DELETE CASCADE,
			item_id TEXT NOT NULL,
			requested_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			suggested_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			supply_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			available_stock_on_hand DOUBLE PRECISION NOT NULL DEFAULT 0,
			comment TEXT
		)
	`)
	return err
}

// changelogTriggerFunction reads the same transaction-local setting
// MarkSyncUpdate writes; the two literals are shared so they cannot drift.
const changelogTriggerFunction = `
		CREATE OR REPLACE FUNCTION append_changelog() RETURNS TRIGGER AS $$
		DECLARE
			rec RECORD;
			action TEXT;
			v_name_id TEXT;
			v_store_id TEXT;
		BEGIN
			IF (TG_OP = 'DELETE') THEN
				rec := OLD;
				action := 'DELETE';
			ELSE
				rec := NEW;
				action := 'UPSERT';
			END IF;

			BEGIN
				v_name_id := rec.name_link_id;
			EXCEPTION WHEN undefined_column THEN
				v_name_id := NULL;
			END;
			BEGIN
				v_store_id := rec.store_id;
			EXCEPTION WHEN undefined_column THEN
				v_store_id := NULL;
			END;

			INSERT INTO changelog (table_name, record_id, row_action, name_id, store_id, is_sync_update)
			VALUES (
				TG_TABLE_NAME, rec.id, action, v_name_id, v_store_id,
				COALESCE(current_setting('` + syncUpdateSetting + `', true), 'false') = '` + syncUpdateValue + `'
			);
			RETURN rec;
		END;
		$$ LANGUAGE plpgsql
	`

// createChangelogTriggers installs the row-level triggers that append a
// changelog entry on every tracked table mutation. Cursor assignment is the
// database's: strictly increasing, never reused.
func createChangelogTriggers(db *sql.DB) error {
	_, err := db.Exec(changelogTriggerFunction)
	if err != nil {
		log.Printf("Error creating changelog trigger function: %v", err)
		return err
	}

	for _, table := range []string{"name", "store", "invoice", "invoice_line", "requisition", "requisition_line"} {
		_, err = db.Exec(fmt.Sprintf(`
			DROP TRIGGER IF EXISTS %s_changelog ON %s;
			CREATE TRIGGER %s_changelog
			AFTER INSERT OR UPDATE OR DELETE ON %s
			FOR EACH ROW EXECUTE FUNCTION append_changelog()
		`, table, table, table, table))
		if err != nil {
			log.Printf("Error creating changelog trigger for %s: %v", table, err)
			return err
		}
	}
	return nil
}
