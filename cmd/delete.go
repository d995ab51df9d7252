// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/LeeDigitalWorks/zapartifact/pkg/artifact"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an artifact's shards and manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *artifact.Service) error {
			deleted, err := svc.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s not found\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate statistics over catalogued artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *artifact.Service) error {
			n, err := svc.Manifests().Warm(ctx)
			if err != nil {
				return err
			}
			logger.Debug().Int("manifests", n).Msg("Warmed manifest cache")

			st, err := svc.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		})
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd, statsCmd)
}
