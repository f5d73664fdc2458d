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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_BATCH_SIZE    = 500
	DEFAULT_INTERVAL_SECS = 60
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"STORESYNC_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"STORESYNC_REDIS_DNS"`
}

// SyncConfig holds the connection details of the central legacy server and
// the identity of this site.
type SyncConfig struct {
	Url             string `json:"url" envconfig:"STORESYNC_SYNC_URL"`
	Username        string `json:"username" envconfig:"STORESYNC_SYNC_USERNAME"`
	PasswordSha256  string `json:"password_sha256" envconfig:"STORESYNC_SYNC_PASSWORD_SHA256"`
	SiteID          int32  `json:"site_id" envconfig:"STORESYNC_SYNC_SITE_ID"`
	PullBatchSize   int    `json:"pull_batch_size" envconfig:"STORESYNC_SYNC_PULL_BATCH_SIZE"`
	PushBatchSize   int    `json:"push_batch_size" envconfig:"STORESYNC_SYNC_PUSH_BATCH_SIZE"`
	IntervalSeconds int    `json:"interval_seconds" envconfig:"STORESYNC_SYNC_INTERVAL_SECONDS"`
}

type QueueConfig struct {
	SyncQueue      string `json:"sync_queue" envconfig:"STORESYNC_QUEUE_SYNC"`
	TransferQueue  string `json:"transfer_queue" envconfig:"STORESYNC_QUEUE_TRANSFER"`
	MonitoringPort string `json:"monitoring_port" envconfig:"STORESYNC_QUEUE_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"STORESYNC_PROJECT_NAME"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Sync         SyncConfig       `json:"sync"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("storesync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called storesync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Storesync"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Sync.Url != "" && cnf.Sync.SiteID == 0 {
		log.Println("Error: Sync site id is empty. It's required when a sync url is set.")
		return errors.New("sync site id is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Sync.Url = strings.TrimSpace(cnf.Sync.Url)
	cnf.Sync.Username = strings.TrimSpace(cnf.Sync.Username)

	if cnf.Sync.PullBatchSize <= 0 {
		cnf.Sync.PullBatchSize = DEFAULT_BATCH_SIZE
	}
	if cnf.Sync.PushBatchSize <= 0 {
		cnf.Sync.PushBatchSize = DEFAULT_BATCH_SIZE
	}
	if cnf.Sync.IntervalSeconds <= 0 {
		cnf.Sync.IntervalSeconds = DEFAULT_INTERVAL_SECS
		log.Printf("Warning: Sync interval not specified. Setting default value: %d seconds", DEFAULT_INTERVAL_SECS)
	}

	if cnf.Queue.SyncQueue == "" {
		cnf.Queue.SyncQueue = "sync_queue"
	}
	if cnf.Queue.TransferQueue == "" {
		cnf.Queue.TransferQueue = "transfer_queue"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5001"
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
