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

package storesync

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/storesync/storesync/model"
)

// memStore is an in-memory stand-in for the Postgres datasource. Mutations
// append changelog entries the way the database triggers would, so translator
// and transfer processor tests can observe the full record-change-react loop.
type memStore struct {
	mu sync.Mutex

	nextCursor int64
	changelog  []model.ChangelogEntry
	syncUpdate bool

	cursors map[string]int64

	buffer      map[string]model.SyncBufferRow
	bufferOrder []string

	invoices         map[string]model.Invoice
	invoiceLines     map[string]model.InvoiceLine
	requisitions     map[string]model.Requisition
	requisitionLines map[string]model.RequisitionLine
	names            map[string]model.Name
	nameLinks        map[string]string
	stores           map[string]model.Store
	users            map[string]bool
	numbers          map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		cursors:          make(map[string]int64),
		buffer:           make(map[string]model.SyncBufferRow),
		invoices:         make(map[string]model.Invoice),
		invoiceLines:     make(map[string]model.InvoiceLine),
		requisitions:     make(map[string]model.Requisition),
		requisitionLines: make(map[string]model.RequisitionLine),
		names:            make(map[string]model.Name),
		nameLinks:        make(map[string]string),
		stores:           make(map[string]model.Store),
		users:            make(map[string]bool),
		numbers:          make(map[string]int64),
	}
}

func (m *memStore) logChange(table model.TableName, recordID string, action model.RowAction) {
	m.nextCursor++
	m.changelog = append(m.changelog, model.ChangelogEntry{
		Cursor:       m.nextCursor,
		TableName:    table,
		RecordID:     recordID,
		RowAction:    action,
		IsSyncUpdate: m.syncUpdate,
	})
}

// logChangeWithName records the mutated document's party link the way the
// changelog triggers do.
func (m *memStore) logChangeWithName(table model.TableName, recordID string, action model.RowAction, nameID string) {
	m.logChange(table, recordID, action)
	m.changelog[len(m.changelog)-1].NameID = &nameID
}

func (m *memStore) Changelogs(_ context.Context, cursor int64, limit int, filter *model.ChangelogFilter) ([]model.ChangelogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.ChangelogEntry
	for _, entry := range m.changelog {
		if entry.Cursor < cursor {
			continue
		}
		if filter != nil && len(filter.TableNames) > 0 {
			match := false
			for _, t := range filter.TableNames {
				if entry.TableName == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter != nil && len(filter.NameIDs) > 0 {
			match := false
			if entry.NameID != nil {
				for _, id := range filter.NameIDs {
					if *entry.NameID == id || m.nameLinks[*entry.NameID] == id {
						match = true
						break
					}
				}
			}
			if !match {
				continue
			}
		}
		result = append(result, entry)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *memStore) LatestCursor(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextCursor, nil
}

func (m *memStore) GetCursor(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.cursors[key]
	return value, ok, nil
}

func (m *memStore) SetCursor(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[key] = value
	return nil
}

func bufferKey(tableName, recordID string) string {
	return tableName + "|" + recordID
}

func (m *memStore) UpsertSyncBufferRows(_ context.Context, rows []model.SyncBufferRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		key := bufferKey(row.TableName, row.RecordID)
		row.IntegrationAt = nil
		row.IntegrationError = nil
		if _, seen := m.buffer[key]; !seen {
			m.bufferOrder = append(m.bufferOrder, key)
		}
		m.buffer[key] = row
	}
	return nil
}

func (m *memStore) UnintegratedSyncBufferRows(_ context.Context, tableName string) ([]model.SyncBufferRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.SyncBufferRow
	for _, key := range m.bufferOrder {
		row := m.buffer[key]
		if row.TableName == tableName && row.IntegrationAt == nil {
			result = append(result, row)
		}
	}
	return result, nil
}

func (m *memStore) RecordSyncBufferSuccess(_ context.Context, tableName, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.buffer[bufferKey(tableName, recordID)]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	row.IntegrationAt = &now
	row.IntegrationError = nil
	m.buffer[bufferKey(tableName, recordID)] = row
	return nil
}

func (m *memStore) RecordSyncBufferError(_ context.Context, tableName, recordID string, integrationError error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.buffer[bufferKey(tableName, recordID)]
	if !ok {
		return nil
	}
	msg := integrationError.Error()
	row.IntegrationError = &msg
	m.buffer[bufferKey(tableName, recordID)] = row
	return nil
}

func (m *memStore) GetInvoice(_ context.Context, id string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (m *memStore) GetInvoiceByLinkedInvoiceID(_ context.Context, linkedInvoiceID string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.invoices))
	for id := range m.invoices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		inv := m.invoices[id]
		if inv.LinkedInvoiceID != nil && *inv.LinkedInvoiceID == linkedInvoiceID {
			return &inv, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertInvoice(_ context.Context, _ *sql.Tx, inv *model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = *inv
	m.logChangeWithName(model.TableNameInvoice, inv.ID, model.RowActionUpsert, inv.NameLinkID)
	return nil
}

func (m *memStore) DeleteInvoice(_ context.Context, _ *sql.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil
	}
	delete(m.invoices, id)
	m.logChangeWithName(model.TableNameInvoice, id, model.RowActionDelete, inv.NameLinkID)
	return nil
}

func (m *memStore) GetInvoiceLine(_ context.Context, id string) (*model.InvoiceLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line, ok := m.invoiceLines[id]
	if !ok {
		return nil, nil
	}
	return &line, nil
}

func (m *memStore) GetInvoiceLines(_ context.Context, invoiceID string) ([]model.InvoiceLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.InvoiceLine
	for _, line := range m.invoiceLines {
		if line.InvoiceID == invoiceID {
			result = append(result, line)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *memStore) UpsertInvoiceLine(_ context.Context, _ *sql.Tx, line *model.InvoiceLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoiceLines[line.ID] = *line
	m.logChange(model.TableNameInvoiceLine, line.ID, model.RowActionUpsert)
	return nil
}

func (m *memStore) DeleteInvoiceLine(_ context.Context, _ *sql.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoiceLines[id]; !ok {
		return nil
	}
	delete(m.invoiceLines, id)
	m.logChange(model.TableNameInvoiceLine, id, model.RowActionDelete)
	return nil
}

func (m *memStore) NextNumber(_ context.Context, _ *sql.Tx, numberType string, storeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := numberType + "|" + storeID
	m.numbers[key]++
	return m.numbers[key], nil
}

func (m *memStore) GetRequisition(_ context.Context, id string) (*model.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requisitions[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (m *memStore) GetRequisitionByLinkedRequisitionID(_ context.Context, linkedRequisitionID string) (*model.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.requisitions))
	for id := range m.requisitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		req := m.requisitions[id]
		if req.LinkedRequisitionID != nil && *req.LinkedRequisitionID == linkedRequisitionID {
			return &req, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertRequisition(_ context.Context, _ *sql.Tx, req *model.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requisitions[req.ID] = *req
	m.logChangeWithName(model.TableNameRequisition, req.ID, model.RowActionUpsert, req.NameLinkID)
	return nil
}

func (m *memStore) DeleteRequisition(_ context.Context, _ *sql.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requisitions[id]
	if !ok {
		return nil
	}
	delete(m.requisitions, id)
	m.logChangeWithName(model.TableNameRequisition, id, model.RowActionDelete, req.NameLinkID)
	return nil
}

func (m *memStore) GetRequisitionLine(_ context.Context, id string) (*model.RequisitionLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line, ok := m.requisitionLines[id]
	if !ok {
		return nil, nil
	}
	return &line, nil
}

func (m *memStore) GetRequisitionLines(_ context.Context, requisitionID string) ([]model.RequisitionLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.RequisitionLine
	for _, line := range m.requisitionLines {
		if line.RequisitionID == requisitionID {
			result = append(result, line)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *memStore) UpsertRequisitionLine(_ context.Context, _ *sql.Tx, line *model.RequisitionLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requisitionLines[line.ID] = *line
	m.logChange(model.TableNameRequisitionLine, line.ID, model.RowActionUpsert)
	return nil
}

func (m *memStore) DeleteRequisitionLine(_ context.Context, _ *sql.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requisitionLines[id]; !ok {
		return nil
	}
	delete(m.requisitionLines, id)
	m.logChange(model.TableNameRequisitionLine, id, model.RowActionDelete)
	return nil
}

func (m *memStore) GetName(_ context.Context, id string) (*model.Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[id]
	if !ok {
		return nil, nil
	}
	return &name, nil
}

func (m *memStore) UpsertName(_ context.Context, _ *sql.Tx, name *model.Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[name.ID] = *name
	if _, ok := m.nameLinks[name.ID]; !ok {
		m.nameLinks[name.ID] = name.ID
	}
	m.logChange(model.TableNameName, name.ID, model.RowActionUpsert)
	return nil
}

func (m *memStore) DeleteName(_ context.Context, _ *sql.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.names[id]; !ok {
		return nil
	}
	delete(m.names, id)
	delete(m.nameLinks, id)
	m.logChange(model.TableNameName, id, model.RowActionDelete)
	return nil
}

func (m *memStore) ResolveNameLink(_ context.Context, nameLinkID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if target, ok := m.nameLinks[nameLinkID]; ok {
		return target, nil
	}
	return nameLinkID, nil
}

func (m *memStore) GetStore(_ context.Context, id string) (*model.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[id]
	if !ok {
		return nil, nil
	}
	return &store, nil
}

func (m *memStore) GetStoreByNameID(_ context.Context, nameID string) (*model.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.stores))
	for id := range m.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		store := m.stores[id]
		if store.NameID == nameID {
			return &store, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertStore(_ context.Context, _ *sql.Tx, store *model.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[store.ID] = *store
	m.logChange(model.TableNameStore, store.ID, model.RowActionUpsert)
	return nil
}

func (m *memStore) ActiveStoresOnSite(_ context.Context, siteID int32) ([]model.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Store
	for _, store := range m.stores {
		if store.SiteID == siteID {
			result = append(result, store)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *memStore) UserExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memStore) InsertPlaceholderUser(_ context.Context, _ *sql.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = true
	return nil
}

func (m *memStore) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

// seedStore registers a store with a matching name record and self link.
func (m *memStore) seedStore(id, nameID, code string, siteID int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[nameID] = model.Name{ID: nameID, Code: code, Name: code, IsStore: true}
	if _, ok := m.nameLinks[nameID]; !ok {
		m.nameLinks[nameID] = nameID
	}
	m.stores[id] = model.Store{ID: id, NameID: nameID, Code: code, SiteID: siteID}
}

// mergeNames points the old name id at the survivor, as a central name merge
// would after sync.
func (m *memStore) mergeNames(oldID, survivorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nameLinks[oldID] = survivorID
}
