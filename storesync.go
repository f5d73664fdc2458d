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
	"github.com/redis/go-redis/v9"

	"github.com/storesync/storesync/config"
	"github.com/storesync/storesync/database"
	redis_db "github.com/storesync/storesync/internal/redis-db"
)

// Storesync represents the main struct for the Storesync application. It owns
// the remote sync pipeline, the legacy wire translators and the cross store
// transfer processors for one site.
type Storesync struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	registry   *TranslatorRegistry
	api        *SyncAPI
	siteID     int32

	invoiceProcessor     transferWorker
	requisitionProcessor transferWorker

	invoiceTrigger     chan struct{}
	requisitionTrigger chan struct{}
	drainRequests      chan chan struct{}
}

// NewStoresync initializes a new instance of Storesync with the provided
// database datasource. It fetches the configuration and wires up the Redis
// client, task queue, remote sync client, translator registry and transfer
// processors.
func NewStoresync(db database.IDataSource) (*Storesync, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}
	api, err := NewSyncAPI(configuration.Sync)
	if err != nil {
		return nil, err
	}
	siteID := configuration.Sync.SiteID
	registry, err := NewTranslatorRegistry(
		NewNameTranslation(db),
		NewStoreTranslation(db),
		NewInvoiceTranslation(db, siteID),
		NewInvoiceLineTranslation(db),
		NewRequisitionTranslation(db, siteID),
		NewRequisitionLineTranslation(db),
	)
	if err != nil {
		return nil, err
	}

	newStoresync := &Storesync{
		queue:                NewQueue(configuration),
		redis:                redisClient.Client(),
		datasource:           db,
		registry:             registry,
		api:                  api,
		siteID:               siteID,
		invoiceProcessor:     NewInvoiceTransferProcessor(db, siteID),
		requisitionProcessor: NewRequisitionTransferProcessor(db, siteID),
		invoiceTrigger:       make(chan struct{}, 1),
		requisitionTrigger:   make(chan struct{}, 1),
		drainRequests:        make(chan chan struct{}),
	}
	return newStoresync, nil
}
