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
	"errors"
	"log"

	"github.com/hibiken/asynq"

	"github.com/storesync/storesync/config"
	redis_db "github.com/storesync/storesync/internal/redis-db"
)

// Task type names. The sync tasks run the remote pull/push passes, the
// transfer task wakes the in-process transfer processors.
const (
	TaskSyncPull        = "sync:pull"
	TaskSyncPush        = "sync:push"
	TaskTransferTrigger = "transfer:trigger"
)

// TransferTriggerPayload identifies which document table's processors a
// transfer trigger task should wake.
type TransferTriggerPayload struct {
	Table string `json:"table"`
}

// Queue represents the Redis-backed task queue for sync and transfer work.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueSyncPull enqueues a pull pass. The task id makes the enqueue
// idempotent: a pull already waiting in the queue absorbs the new request.
func (q *Queue) EnqueueSyncPull(ctx context.Context) error {
	return q.enqueueSyncTask(ctx, TaskSyncPull)
}

// EnqueueSyncPush enqueues a push pass, coalesced the same way as pull.
func (q *Queue) EnqueueSyncPush(ctx context.Context) error {
	return q.enqueueSyncTask(ctx, TaskSyncPush)
}

func (q *Queue) enqueueSyncTask(ctx context.Context, taskType string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(taskType),
		asynq.Queue(cfg.Queue.SyncQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(taskType, nil, taskOptions...)
	_, err = q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueTransferTrigger enqueues a wake-up for the transfer processors of
// one document table. Triggers for the same table coalesce on the task id.
func (q *Queue) EnqueueTransferTrigger(ctx context.Context, table string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(TransferTriggerPayload{Table: table})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(TaskTransferTrigger + ":" + table),
		asynq.Queue(cfg.Queue.TransferQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(TaskTransferTrigger, payload, taskOptions...)
	_, err = q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Depth returns the number of pending tasks on the named queue.
func (q *Queue) Depth(queueName string) (int, error) {
	info, err := q.Inspector.GetQueueInfo(queueName)
	if err != nil {
		return 0, err
	}
	return info.Pending, nil
}
