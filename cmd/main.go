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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/storesync/storesync"
	"github.com/storesync/storesync/config"
	"github.com/storesync/storesync/database"
	"github.com/storesync/storesync/internal/notification"
)

// Storesync represents the CLI application, encapsulating the root Cobra command.
type Storesync struct {
	cmd *cobra.Command
}

// storesyncInstance holds the runtime Storesync instance and its configuration
// so subcommands share one wired-up engine.
type storesyncInstance struct {
	sync *storesync.Storesync
	cnf  *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the Storesync instance before
// running any command.
func preRun(app *storesyncInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("storesync.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newSync, err := setupStoresync(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.sync = newSync
		app.cnf = cnf

		return nil
	}
}

// setupStoresync creates and initializes a new Storesync instance connected to
// the configured data source.
func setupStoresync(cfg *config.Configuration) (*storesync.Storesync, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newSync, err := storesync.NewStoresync(db)
	if err != nil {
		return nil, fmt.Errorf("error creating storesync: %v", err)
	}
	return newSync, nil
}

// NewCLI creates the command-line interface for the Storesync application.
func NewCLI() *Storesync {
	var configFile string
	b := &storesyncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "storesync",
		Short: "Multi site inventory sync and transfer engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./storesync.json", "Configuration file for storesync")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(syncCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Storesync{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Storesync) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
