// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/zapartifact/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "zapartifact",
	Short: "ZapArtifact - sharded artifact storage",
	Long: `ZapArtifact stores large artifacts as checksummed shards on local disk,
S3, GCS or Azure Blob Storage, and reassembles them with end-to-end verification.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	registerArtifactFlags(rootCmd)
}

// loadConfig merges artifact.{toml,yaml,json} into viper before any command runs
func loadConfig(cmd *cobra.Command, args []string) error {
	utils.LoadConfiguration("artifact", false)
	return viper.BindPFlags(cmd.Flags())
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
