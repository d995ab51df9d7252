// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run one pass over the orphan queue",
	Long: `Delete queued orphan shards that are older than the grace period and that
no manifest references. Only useful with a persistent orphan_index_path.

Writes in progress are only visible to the process running them. A shard
written by another process (such as serve) for an artifact id whose manifest
is not saved yet looks unreferenced, so a pass with --grace 0s can delete it.
Keep the grace period longer than the slowest write when serve is running
against the same backends.`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().Duration("grace", 0, "Override gc_grace_period for this pass (0 deletes immediately)")
	gcCmd.Flags().Bool("list", false, "Print the queue without deleting anything")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *artifactRuntime) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			pending, err := rt.sweeper.Pending()
			if err != nil {
				return err
			}
			return printJSON(cmd, pending)
		}

		grace := NewFlagLoader(cmd).Duration("gc_grace_period")
		if cmd.Flags().Changed("grace") {
			grace, _ = cmd.Flags().GetDuration("grace")
		}
		return printJSON(cmd, rt.sweeper.RunWithGracePeriod(ctx, grace))
	})
}

