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
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/pkg/errors"

	"github.com/storesync/storesync/config"
	"github.com/storesync/storesync/model"
	"github.com/storesync/storesync/request"
)

// RemoteSyncRecord is one queued record from the central server. Cursor is
// the central changelog position the record was read at; pulling resumes
// from the highest cursor durably buffered.
type RemoteSyncRecord struct {
	Cursor   int64            `json:"cursor"`
	Table    string           `json:"table_name"`
	RecordID string           `json:"record_id"`
	Action   model.SyncAction `json:"action"`
	Data     json.RawMessage  `json:"data"`
}

// Validate rejects malformed queued records before they reach the buffer.
// Only the fields named here are contractual; business fields inside Data are
// the translators' concern.
func (r RemoteSyncRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Cursor, validation.Required),
		validation.Field(&r.Table, validation.Required),
		validation.Field(&r.RecordID, validation.Required),
		validation.Field(&r.Action, validation.Required, validation.In(model.SyncActionUpsert, model.SyncActionDelete)),
	)
}

// RemoteSyncBatch is the central server's response to a pull request.
// QueueLength counts records still queued after this batch.
type RemoteSyncBatch struct {
	QueueLength int64              `json:"queue_length"`
	Records     []RemoteSyncRecord `json:"data"`
}

// SyncAPI is the HTTP client for the central legacy server.
type SyncAPI struct {
	serverURL      string
	username       string
	passwordSha256 string
	siteID         int32
}

func NewSyncAPI(conf config.SyncConfig) (*SyncAPI, error) {
	api := &SyncAPI{
		serverURL:      conf.Url,
		username:       conf.Username,
		passwordSha256: conf.PasswordSha256,
		siteID:         conf.SiteID,
	}
	err := validation.ValidateStruct(api,
		validation.Field(&api.serverURL, validation.Required, is.URL),
		validation.Field(&api.username, validation.Required),
		validation.Field(&api.siteID, validation.Required),
	)
	if err != nil {
		return nil, errors.Wrap(err, "invalid sync configuration")
	}
	return api, nil
}

// PullQueuedRecords fetches up to limit records queued for this site after
// the given cursor, ordered by cursor ascending.
func (a *SyncAPI) PullQueuedRecords(ctx context.Context, cursor int64, limit int) (*RemoteSyncBatch, error) {
	url := fmt.Sprintf("%s/sync/queued_records?cursor=%d&limit=%d", a.serverURL, cursor, limit)
	var batch RemoteSyncBatch
	if err := a.call(ctx, http.MethodGet, url, nil, &batch); err != nil {
		return nil, errors.Wrap(err, "pulling queued records")
	}
	for _, record := range batch.Records {
		if err := record.Validate(); err != nil {
			return nil, errors.Wrapf(err, "invalid queued record %s %s", record.Table, record.RecordID)
		}
	}
	return &batch, nil
}

// PushRecords uploads translated records. The server acknowledges the batch
// atomically; a partial push is retried whole.
func (a *SyncAPI) PushRecords(ctx context.Context, records []PushRecord) error {
	if len(records) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/sync/queued_records", a.serverURL)
	body := map[string]interface{}{
		"site_id": a.siteID,
		"data":    records,
	}
	var response map[string]interface{}
	return errors.Wrap(a.call(ctx, http.MethodPost, url, body, &response), "pushing records")
}

// call issues one HTTP request with exponential backoff on transient
// failures. Authentication errors are permanent and not retried.
func (a *SyncAPI) call(ctx context.Context, method, url string, body interface{}, response interface{}) error {
	operation := func() error {
		var reqBody io.Reader
		if body != nil {
			buf, err := request.ToJsonReq(body)
			if err != nil {
				return backoff.Permanent(err)
			}
			reqBody = buf
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Basic "+request.BasicAuth(a.username, a.passwordSha256))
		req.Header.Set("site-id", fmt.Sprintf("%d", a.siteID))

		resp, err := request.Call(req, response)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(errors.Errorf("sync auth rejected with status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return errors.Errorf("sync request failed with status %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(operation, policy)
}
