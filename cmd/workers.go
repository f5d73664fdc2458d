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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/storesync/storesync"
	"github.com/storesync/storesync/config"
	redis_db "github.com/storesync/storesync/internal/redis-db"
	"github.com/storesync/storesync/model"
)

// processSyncPull runs a pull pass when a pull task arrives on the sync queue.
func (b *storesyncInstance) processSyncPull(ctx context.Context, _ *asynq.Task) error {
	if err := b.sync.Pull(ctx); err != nil {
		logrus.Error(err)
		return err
	}
	log.Println(" [*] Pull pass complete")
	return nil
}

// processSyncPush runs a push pass when a push task arrives on the sync queue.
func (b *storesyncInstance) processSyncPush(ctx context.Context, _ *asynq.Task) error {
	if err := b.sync.Push(ctx); err != nil {
		logrus.Error(err)
		return err
	}
	log.Println(" [*] Push pass complete")
	return nil
}

// processTransferTrigger wakes the transfer processors for the table named in
// the task payload.
func (b *storesyncInstance) processTransferTrigger(_ context.Context, t *asynq.Task) error {
	var payload storesync.TransferTriggerPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	switch model.TableName(payload.Table) {
	case model.TableNameInvoice:
		b.sync.TriggerInvoiceTransferProcessor()
	case model.TableNameRequisition:
		b.sync.TriggerRequisitionTransferProcessor()
	default:
		b.sync.TriggerTransferProcessors()
	}
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.SyncQueue] = 1
	queues[cfg.Queue.TransferQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *storesyncInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(storesync.TaskSyncPull, b.processSyncPull)
	mux.HandleFunc(storesync.TaskSyncPush, b.processSyncPush)
	mux.HandleFunc(storesync.TaskTransferTrigger, b.processTransferTrigger)
}

// scheduleSyncTasks enqueues a pull and a push task on the configured
// interval. Tasks coalesce on their id, so a slow pass never piles up work.
func scheduleSyncTasks(ctx context.Context, conf *config.Configuration) {
	queue := storesync.NewQueue(conf)
	ticker := time.NewTicker(time.Duration(conf.Sync.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := queue.EnqueueSyncPull(ctx); err != nil {
				logrus.Errorf("enqueue pull: %v", err)
			}
			if err := queue.EnqueueSyncPush(ctx); err != nil {
				logrus.Errorf("enqueue push: %v", err)
			}
		}
	}
}

// workerCommands defines the "workers" command. The workers consume the sync
// and transfer queues and run the in-process transfer processors.
func workerCommands(b *storesyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start storesync workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			b.sync.StartTransferProcessors(ctx)

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if conf.Sync.Url != "" {
				go scheduleSyncTasks(ctx, conf)
			}

			// Asynqmon serves queue health under /monitoring.
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Printf("Error starting asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
