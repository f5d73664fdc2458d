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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesync/storesync/model"
)

// stubTranslator lets registry tests describe arbitrary dependency graphs.
type stubTranslator struct {
	table string
	deps  []string
}

func (s *stubTranslator) Table() string              { return s.table }
func (s *stubTranslator) ChangelogTables() []string  { return nil }
func (s *stubTranslator) PullDependencies() []string { return s.deps }
func (s *stubTranslator) TranslatePull(context.Context, *sql.Tx, model.SyncBufferRow) (PullResult, error) {
	return PullIntegrated(), nil
}
func (s *stubTranslator) TranslatePush(context.Context, model.ChangelogEntry) (PushResult, error) {
	return PushResult{}, nil
}

func registryTables(r *TranslatorRegistry) []string {
	var tables []string
	for _, t := range r.IntegrationOrder() {
		tables = append(tables, t.Table())
	}
	return tables
}

func TestRegistryIntegrationOrderRespectsDependencies(t *testing.T) {
	mem := newMemStore()
	registry, err := NewTranslatorRegistry(
		NewInvoiceLineTranslation(mem),
		NewInvoiceTranslation(mem, 2),
		NewRequisitionLineTranslation(mem),
		NewRequisitionTranslation(mem, 2),
		NewStoreTranslation(mem),
		NewNameTranslation(mem),
	)
	require.NoError(t, err)

	position := make(map[string]int)
	for i, table := range registryTables(registry) {
		position[table] = i
	}

	assert.Less(t, position[LegacyTableName], position[LegacyTableStore])
	assert.Less(t, position[LegacyTableStore], position[LegacyTableTransact])
	assert.Less(t, position[LegacyTableTransact], position[LegacyTableTransLine])
	assert.Less(t, position[LegacyTableName], position[LegacyTableRequisition])
	assert.Less(t, position[LegacyTableRequisition], position[LegacyTableRequisitionLine])
}

func TestRegistryOrderIsDeterministic(t *testing.T) {
	build := func() []string {
		registry, err := NewTranslatorRegistry(
			&stubTranslator{table: "c", deps: []string{"a"}},
			&stubTranslator{table: "b", deps: []string{"a"}},
			&stubTranslator{table: "a"},
			&stubTranslator{table: "d", deps: []string{"b", "c"}},
		)
		require.NoError(t, err)
		return registryTables(registry)
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, first)
}

func TestRegistrySkipsUnregisteredDependencies(t *testing.T) {
	registry, err := NewTranslatorRegistry(
		&stubTranslator{table: "b", deps: []string{"not_registered"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, registryTables(registry))
}

func TestRegistryRejectsDependencyCycle(t *testing.T) {
	_, err := NewTranslatorRegistry(
		&stubTranslator{table: "a", deps: []string{"b"}},
		&stubTranslator{table: "b", deps: []string{"a"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestRegistryRejectsDuplicateTable(t *testing.T) {
	_, err := NewTranslatorRegistry(
		&stubTranslator{table: "a"},
		&stubTranslator{table: "a"},
	)
	require.Error(t, err)
}

func TestRegistryForChangelogTable(t *testing.T) {
	mem := newMemStore()
	registry, err := NewTranslatorRegistry(
		NewInvoiceTranslation(mem, 2),
		NewInvoiceLineTranslation(mem),
	)
	require.NoError(t, err)

	translator, ok := registry.ForChangelogTable(string(model.TableNameInvoice))
	require.True(t, ok)
	assert.Equal(t, LegacyTableTransact, translator.Table())

	translator, ok = registry.ForChangelogTable(string(model.TableNameInvoiceLine))
	require.True(t, ok)
	assert.Equal(t, LegacyTableTransLine, translator.Table())

	_, ok = registry.ForChangelogTable("unknown")
	assert.False(t, ok)
}
