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
	"log"

	"github.com/spf13/cobra"
)

// syncCommands creates the commands for running sync passes against the
// central server, either one-shot or on the configured interval.
func syncCommands(b *storesyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "run sync passes against the central server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "prime the push cursor past pre-existing data",
		Run: func(cmd *cobra.Command, args []string) {
			if err := b.sync.Initialise(context.Background()); err != nil {
				log.Fatalf("initialise failed: %v", err)
			}
			log.Println("Sync initialised.")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "run a single pull pass",
		Run: func(cmd *cobra.Command, args []string) {
			if err := b.sync.Pull(context.Background()); err != nil {
				log.Fatalf("pull failed: %v", err)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "run a single push pass",
		Run: func(cmd *cobra.Command, args []string) {
			if err := b.sync.Push(context.Background()); err != nil {
				log.Fatalf("push failed: %v", err)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "loop",
		Short: "run pull and push on the configured interval until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			b.sync.StartTransferProcessors(ctx)
			b.sync.RunSyncLoop(ctx)
		},
	})

	return cmd
}
