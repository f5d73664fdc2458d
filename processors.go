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

	"github.com/sirupsen/logrus"

	"github.com/storesync/storesync/internal/notification"
	"github.com/storesync/storesync/model"
)

const transferBatchSize = 100

// transferWorker is one transfer processor category. A worker scans the
// changelog from its own cursor and reacts to entries of its tables.
type transferWorker interface {
	CursorKey() string
	Tables() []model.TableName
	Process(ctx context.Context, entry model.ChangelogEntry) error
}

// TriggerTransferProcessors wakes both processor categories. The signal is
// fire and forget; a trigger arriving mid-pass coalesces into the next pass.
func (s *Storesync) TriggerTransferProcessors() {
	s.TriggerRequisitionTransferProcessor()
	s.TriggerInvoiceTransferProcessor()
}

func (s *Storesync) TriggerInvoiceTransferProcessor() {
	select {
	case s.invoiceTrigger <- struct{}{}:
	default:
	}
}

func (s *Storesync) TriggerRequisitionTransferProcessor() {
	select {
	case s.requisitionTrigger <- struct{}{}:
	default:
	}
}

// AwaitEventsProcessed blocks until every trigger sent before the call has
// been fully processed. Used by tests and by callers that need transfer
// side effects visible before proceeding.
func (s *Storesync) AwaitEventsProcessed(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.drainRequests <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartTransferProcessors runs the processor loop until ctx is cancelled.
func (s *Storesync) StartTransferProcessors(ctx context.Context) {
	go s.processorLoop(ctx)
}

// processorLoop services triggers one pass at a time. Both categories share
// this single runner on purpose: passes never overlap, and an invoice pass
// always observes the requisition writes that preceded it. Requisition
// triggers are biased ahead of invoice triggers so that a response
// requisition exists by the time the shipment that fulfils it mirrors. A
// drain request is only answered once both categories are idle.
func (s *Storesync) processorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.requisitionTrigger:
			s.runTransferPass(ctx, s.requisitionProcessor)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-s.requisitionTrigger:
			s.runTransferPass(ctx, s.requisitionProcessor)
		case <-s.invoiceTrigger:
			s.runTransferPass(ctx, s.invoiceProcessor)
		case done := <-s.drainRequests:
			s.drainPending(ctx)
			close(done)
		}
	}
}

// drainPending consumes any queued triggers and runs their passes before the
// drain barrier releases.
func (s *Storesync) drainPending(ctx context.Context) {
	for {
		select {
		case <-s.requisitionTrigger:
			s.runTransferPass(ctx, s.requisitionProcessor)
		case <-s.invoiceTrigger:
			s.runTransferPass(ctx, s.invoiceProcessor)
		default:
			return
		}
	}
}

// runTransferPass scans the changelog from the worker's cursor to the end.
// The cursor advances per entry after durable application; an entry that
// fails halts the pass at that cursor so nothing is skipped.
func (s *Storesync) runTransferPass(ctx context.Context, worker transferWorker) {
	filter := &model.ChangelogFilter{TableNames: worker.Tables()}
	if s.siteID != 0 {
		// Only documents addressed to a store on this site can pair up, so
		// the scan narrows to entries carrying those stores' party names.
		stores, err := s.datasource.ActiveStoresOnSite(ctx, s.siteID)
		if err != nil {
			logrus.Errorf("transfer pass store lookup failed: %v", err)
			return
		}
		if len(stores) == 0 {
			return
		}
		for _, store := range stores {
			filter.NameIDs = append(filter.NameIDs, store.NameID)
		}
	}
	for {
		cursor, _, err := s.datasource.GetCursor(ctx, worker.CursorKey())
		if err != nil {
			logrus.Errorf("transfer pass cursor read failed: %v", err)
			return
		}
		entries, err := s.datasource.Changelogs(ctx, cursor+1, transferBatchSize, filter)
		if err != nil {
			logrus.Errorf("transfer pass changelog read failed: %v", err)
			return
		}
		if len(entries) == 0 {
			return
		}
		for _, entry := range entries {
			if err := worker.Process(ctx, entry); err != nil {
				notification.NotifyError(err)
				logrus.WithFields(logrus.Fields{
					"cursor": entry.Cursor,
					"table":  entry.TableName,
					"record": entry.RecordID,
				}).Errorf("transfer processing halted: %v", err)
				return
			}
			if err := s.datasource.SetCursor(ctx, worker.CursorKey(), entry.Cursor); err != nil {
				logrus.Errorf("transfer pass cursor write failed: %v", err)
				return
			}
		}
	}
}
