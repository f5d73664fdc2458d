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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/storesync/storesync/config"
	"github.com/storesync/storesync/database"
	redlock "github.com/storesync/storesync/internal/lock"
	"github.com/storesync/storesync/internal/notification"
	"github.com/storesync/storesync/model"
)

const (
	lockSyncPull = "storesync:lock:pull"
	lockSyncPush = "storesync:lock:push"

	syncLockTimeout  = 5 * time.Minute
	syncLockWaitTime = 30 * time.Second
)

// Initialise primes the push cursor to the current end of the changelog so
// data loaded before sync was enabled is never uploaded. An existing cursor
// is left alone, so running it again is harmless.
func (s *Storesync) Initialise(ctx context.Context) error {
	_, found, err := s.datasource.GetCursor(ctx, database.CursorKeyPush)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	latest, err := s.datasource.LatestCursor(ctx)
	if err != nil {
		return err
	}
	return s.datasource.SetCursor(ctx, database.CursorKeyPush, latest)
}

// Pull fetches queued records from the central server into the sync buffer,
// integrates the buffer in dependency order, and wakes the transfer
// processors. The pull cursor advances as soon as a batch is durably
// buffered; integration failures park individual rows without losing them.
func (s *Storesync) Pull(ctx context.Context) error {
	locker := redlock.NewLocker(s.redis, lockSyncPull, database.GenerateUUIDWithSuffix("lock"))
	if err := locker.WaitLock(ctx, syncLockTimeout, syncLockWaitTime); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("releasing pull lock: %v", err)
		}
	}()

	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	for {
		cursor, _, err := s.datasource.GetCursor(ctx, database.CursorKeyPull)
		if err != nil {
			return err
		}
		batch, err := s.api.PullQueuedRecords(ctx, cursor, conf.Sync.PullBatchSize)
		if err != nil {
			return err
		}
		if len(batch.Records) == 0 {
			break
		}

		now := time.Now().UTC()
		rows := make([]model.SyncBufferRow, 0, len(batch.Records))
		maxCursor := cursor
		for _, record := range batch.Records {
			rows = append(rows, model.SyncBufferRow{
				TableName:  record.Table,
				RecordID:   record.RecordID,
				Action:     record.Action,
				Data:       string(record.Data),
				ReceivedAt: now,
			})
			if record.Cursor > maxCursor {
				maxCursor = record.Cursor
			}
		}
		if err := s.datasource.UpsertSyncBufferRows(ctx, rows); err != nil {
			return err
		}
		if err := s.datasource.SetCursor(ctx, database.CursorKeyPull, maxCursor); err != nil {
			return err
		}
		logrus.Infof("buffered %d sync records up to remote cursor %d", len(rows), maxCursor)

		if batch.QueueLength == 0 {
			break
		}
	}

	if err := s.integrateSyncBuffer(ctx); err != nil {
		return err
	}
	s.TriggerTransferProcessors()
	return nil
}

// integrateSyncBuffer translates unintegrated buffer rows table by table in
// dependency order. Each row is applied in its own transaction so one bad
// record never poisons the batch.
func (s *Storesync) integrateSyncBuffer(ctx context.Context) error {
	for _, translator := range s.registry.IntegrationOrder() {
		rows, err := s.datasource.UnintegratedSyncBufferRows(ctx, translator.Table())
		if err != nil {
			return err
		}
		for _, row := range rows {
			var result PullResult
			err := s.datasource.WithTransaction(ctx, func(tx *sql.Tx) error {
				if err := database.MarkSyncUpdate(ctx, tx); err != nil {
					return err
				}
				var trErr error
				result, trErr = translator.TranslatePull(ctx, tx, row)
				return trErr
			})
			switch {
			case err == nil:
				if result.Ignored {
					logrus.WithFields(logrus.Fields{
						"table":  row.TableName,
						"record": row.RecordID,
						"reason": result.Reason,
					}).Debug("sync record ignored")
				}
				if err := s.datasource.RecordSyncBufferSuccess(ctx, row.TableName, row.RecordID); err != nil {
					return err
				}
			case IsOwnershipError(err):
				// Never self-heals on retry; surface it to an operator.
				notification.NotifyError(err)
				if err := s.datasource.RecordSyncBufferError(ctx, row.TableName, row.RecordID, err); err != nil {
					return err
				}
			default:
				// Parked; a later pull may bring the missing dependency.
				logrus.WithFields(logrus.Fields{
					"table":  row.TableName,
					"record": row.RecordID,
				}).Warnf("sync record integration failed: %v", err)
				if err := s.datasource.RecordSyncBufferError(ctx, row.TableName, row.RecordID, err); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Push reads local changelog entries since the push cursor, renders them to
// wire records, and uploads them. The cursor advances only after the remote
// acknowledges a batch.
func (s *Storesync) Push(ctx context.Context) error {
	locker := redlock.NewLocker(s.redis, lockSyncPush, database.GenerateUUIDWithSuffix("lock"))
	if err := locker.WaitLock(ctx, syncLockTimeout, syncLockWaitTime); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("releasing push lock: %v", err)
		}
	}()

	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	for {
		cursor, _, err := s.datasource.GetCursor(ctx, database.CursorKeyPush)
		if err != nil {
			return err
		}
		entries, err := s.datasource.Changelogs(ctx, cursor+1, conf.Sync.PushBatchSize, nil)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		var records []PushRecord
		for _, entry := range entries {
			// Mutations produced by integrating pulled records are
			// already known to the central server.
			if entry.IsSyncUpdate {
				continue
			}
			translator, ok := s.registry.ForChangelogTable(string(entry.TableName))
			if !ok {
				continue
			}
			result, err := translator.TranslatePush(ctx, entry)
			if err != nil {
				return err
			}
			if result.Ignored {
				logrus.WithFields(logrus.Fields{
					"table":  entry.TableName,
					"record": entry.RecordID,
					"reason": result.Reason,
				}).Debug("changelog entry not pushed")
				continue
			}
			records = append(records, result.Records...)
		}

		if err := s.api.PushRecords(ctx, records); err != nil {
			return err
		}
		if err := s.datasource.SetCursor(ctx, database.CursorKeyPush, entries[len(entries)-1].Cursor); err != nil {
			return err
		}
		logrus.Infof("pushed %d wire records up to cursor %d", len(records), entries[len(entries)-1].Cursor)

		if len(entries) < conf.Sync.PushBatchSize {
			return nil
		}
	}
}

// RunSyncLoop runs pull then push on the configured interval until the
// context is cancelled. Single-shot errors are logged and the loop carries
// on; the cursors guarantee nothing is skipped.
func (s *Storesync) RunSyncLoop(ctx context.Context) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}
	ticker := time.NewTicker(time.Duration(conf.Sync.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Pull(ctx); err != nil {
				logrus.Errorf("sync pull failed: %v", err)
			}
			if err := s.Push(ctx); err != nil {
				logrus.Errorf("sync push failed: %v", err)
			}
		}
	}
}
