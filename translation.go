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
	"encoding/json"
	"fmt"
	"sort"

	"github.com/storesync/storesync/model"
)

// Translator converts between a legacy wire table and the local schema. Pull
// translation applies the converted record inside the supplied transaction;
// push translation renders local changelog entries back into wire payloads.
type Translator interface {
	// Table is the legacy wire table this translator owns.
	Table() string
	// ChangelogTables are the local tables whose changelog entries this
	// translator can render for push.
	ChangelogTables() []string
	// PullDependencies names the legacy tables that must be integrated
	// before this one, so referenced records exist when rows land.
	PullDependencies() []string
	TranslatePull(ctx context.Context, tx *sql.Tx, row model.SyncBufferRow) (PullResult, error)
	TranslatePush(ctx context.Context, entry model.ChangelogEntry) (PushResult, error)
}

// PullResult reports what pull translation did with a buffered row. A row is
// either integrated or ignored with a reason; failures are errors.
type PullResult struct {
	Ignored bool
	Reason  string
}

func PullIntegrated() PullResult {
	return PullResult{}
}

func PullIgnored(reason string) PullResult {
	return PullResult{Ignored: true, Reason: reason}
}

// PushRecord is one outgoing wire record rendered from a changelog entry.
type PushRecord struct {
	Table    string           `json:"table_name"`
	RecordID string           `json:"record_id"`
	Action   model.SyncAction `json:"action"`
	Data     json.RawMessage  `json:"data,omitempty"`
}

// PushResult reports what push translation produced for a changelog entry.
// One entry can expand to several wire records, a parent document pushing
// its lines alongside itself.
type PushResult struct {
	Records []PushRecord
	Ignored bool
	Reason  string
}

func PushRecords(records ...PushRecord) PushResult {
	return PushResult{Records: records}
}

func PushIgnored(reason string) PushResult {
	return PushResult{Ignored: true, Reason: reason}
}

// TranslatorRegistry holds all translators and fixes the order rows are
// integrated in. The order is a topological sort of PullDependencies, not
// registration order, so registering translators in any order is safe.
type TranslatorRegistry struct {
	byTable          map[string]Translator
	byChangelogTable map[string]Translator
	order            []Translator
}

func NewTranslatorRegistry(translators ...Translator) (*TranslatorRegistry, error) {
	r := &TranslatorRegistry{
		byTable:          make(map[string]Translator),
		byChangelogTable: make(map[string]Translator),
	}
	for _, t := range translators {
		if _, ok := r.byTable[t.Table()]; ok {
			return nil, fmt.Errorf("duplicate translator for table %s", t.Table())
		}
		r.byTable[t.Table()] = t
		for _, ct := range t.ChangelogTables() {
			r.byChangelogTable[ct] = t
		}
	}

	order, err := topologicalOrder(r.byTable)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// IntegrationOrder returns translators dependency-first.
func (r *TranslatorRegistry) IntegrationOrder() []Translator {
	return r.order
}

// ForTable looks up the translator that owns a legacy wire table.
func (r *TranslatorRegistry) ForTable(table string) (Translator, bool) {
	t, ok := r.byTable[table]
	return t, ok
}

// ForChangelogTable looks up the translator that renders a local table's
// changelog entries for push.
func (r *TranslatorRegistry) ForChangelogTable(table string) (Translator, bool) {
	t, ok := r.byChangelogTable[table]
	return t, ok
}

// topologicalOrder runs Kahn's algorithm over PullDependencies. Table names
// are visited in sorted order so the result is deterministic. A dependency
// with no registered translator is assumed to be integrated elsewhere and is
// skipped.
func topologicalOrder(byTable map[string]Translator) ([]Translator, error) {
	names := make([]string, 0, len(byTable))
	for name := range byTable {
		names = append(names, name)
	}
	sort.Strings(names)

	inDegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, name := range names {
		inDegree[name] = 0
	}
	for _, name := range names {
		for _, dep := range byTable[name].PullDependencies() {
			if _, ok := byTable[dep]; !ok {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var order []Translator
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, byTable[name])
		sort.Strings(dependents[name])
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(names) {
		var cyclic []string
		for _, name := range names {
			if inDegree[name] > 0 {
				cyclic = append(cyclic, name)
			}
		}
		return nil, fmt.Errorf("translator dependency cycle involving %v", cyclic)
	}
	return order, nil
}
