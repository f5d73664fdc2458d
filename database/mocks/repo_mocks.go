/*
Copyright 2025 Storesync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package mocks

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/storesync/storesync/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Changelog methods

func (m *MockDataSource) Changelogs(ctx context.Context, cursor int64, limit int, filter *model.ChangelogFilter) ([]model.ChangelogEntry, error) {
	args := m.Called(ctx, cursor, limit, filter)
	return args.Get(0).([]model.ChangelogEntry), args.Error(1)
}

func (m *MockDataSource) LatestCursor(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Cursor methods

func (m *MockDataSource) GetCursor(ctx context.Context, key string) (int64, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockDataSource) SetCursor(ctx context.Context, key string, value int64) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// Sync buffer methods

func (m *MockDataSource) UpsertSyncBufferRows(ctx context.Context, rows []model.SyncBufferRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockDataSource) UnintegratedSyncBufferRows(ctx context.Context, tableName string) ([]model.SyncBufferRow, error) {
	args := m.Called(ctx, tableName)
	return args.Get(0).([]model.SyncBufferRow), args.Error(1)
}

func (m *MockDataSource) RecordSyncBufferSuccess(ctx context.Context, tableName, recordID string) error {
	args := m.Called(ctx, tableName, recordID)
	return args.Error(0)
}

func (m *MockDataSource) RecordSyncBufferError(ctx context.Context, tableName, recordID string, integrationError error) error {
	args := m.Called(ctx, tableName, recordID, integrationError)
	return args.Error(0)
}

// Invoice methods

func (m *MockDataSource) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockDataSource) GetInvoiceByLinkedInvoiceID(ctx context.Context, linkedInvoiceID string) (*model.Invoice, error) {
	args := m.Called(ctx, linkedInvoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockDataSource) UpsertInvoice(ctx context.Context, tx *sql.Tx, inv *model.Invoice) error {
	args := m.Called(ctx, tx, inv)
	return args.Error(0)
}

func (m *MockDataSource) DeleteInvoice(ctx context.Context, tx *sql.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockDataSource) GetInvoiceLine(ctx context.Context, id string) (*model.InvoiceLine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InvoiceLine), args.Error(1)
}

func (m *MockDataSource) GetInvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]model.InvoiceLine), args.Error(1)
}

func (m *MockDataSource) UpsertInvoiceLine(ctx context.Context, tx *sql.Tx, line *model.InvoiceLine) error {
	args := m.Called(ctx, tx, line)
	return args.Error(0)
}

func (m *MockDataSource) DeleteInvoiceLine(ctx context.Context, tx *sql.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockDataSource) NextNumber(ctx context.Context, tx *sql.Tx, numberType string, storeID string) (int64, error) {
	args := m.Called(ctx, tx, numberType, storeID)
	return args.Get(0).(int64), args.Error(1)
}

// Requisition methods

func (m *MockDataSource) GetRequisition(ctx context.Context, id string) (*model.Requisition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Requisition), args.Error(1)
}

func (m *MockDataSource) GetRequisitionByLinkedRequisitionID(ctx context.Context, linkedRequisitionID string) (*model.Requisition, error) {
	args := m.Called(ctx, linkedRequisitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Requisition), args.Error(1)
}

func (m *MockDataSource) UpsertRequisition(ctx context.Context, tx *sql.Tx, req *model.Requisition) error {
	args := m.Called(ctx, tx, req)
	return args.Error(0)
}

func (m *MockDataSource) DeleteRequisition(ctx context.Context, tx *sql.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockDataSource) GetRequisitionLine(ctx context.Context, id string) (*model.RequisitionLine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RequisitionLine), args.Error(1)
}

func (m *MockDataSource) GetRequisitionLines(ctx context.Context, requisitionID string) ([]model.RequisitionLine, error) {
	args := m.Called(ctx, requisitionID)
	return args.Get(0).([]model.RequisitionLine), args.Error(1)
}

func (m *MockDataSource) UpsertRequisitionLine(ctx context.Context, tx *sql.Tx, line *model.RequisitionLine) error {
	args := m.Called(ctx, tx, line)
	return args.Error(0)
}

func (m *MockDataSource) DeleteRequisitionLine(ctx context.Context, tx *sql.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// Party methods

func (m *MockDataSource) GetName(ctx context.Context, id string) (*model.Name, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Name), args.Error(1)
}

func (m *MockDataSource) UpsertName(ctx context.Context, tx *sql.Tx, name *model.Name) error {
	args := m.Called(ctx, tx, name)
	return args.Error(0)
}

func (m *MockDataSource) DeleteName(ctx context.Context, tx *sql.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockDataSource) ResolveNameLink(ctx context.Context, nameLinkID string) (string, error) {
	args := m.Called(ctx, nameLinkID)
	return args.String(0), args.Error(1)
}

func (m *MockDataSource) GetStore(ctx context.Context, id string) (*model.Store, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Store), args.Error(1)
}

func (m *MockDataSource) GetStoreByNameID(ctx context.Context, nameID string) (*model.Store, error) {
	args := m.Called(ctx, nameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Store), args.Error(1)
}

func (m *MockDataSource) UpsertStore(ctx context.Context, tx *sql.Tx, store *model.Store) error {
	args := m.Called(ctx, tx, store)
	return args.Error(0)
}

func (m *MockDataSource) ActiveStoresOnSite(ctx context.Context, siteID int32) ([]model.Store, error) {
	args := m.Called(ctx, siteID)
	return args.Get(0).([]model.Store), args.Error(1)
}

func (m *MockDataSource) UserExists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) InsertPlaceholderUser(ctx context.Context, tx *sql.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// Transaction wrapper

func (m *MockDataSource) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(nil)
}
