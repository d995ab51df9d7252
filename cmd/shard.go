// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LeeDigitalWorks/zapartifact/pkg/artifact"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var shardCmd = &cobra.Command{
	Use:   "shard <file>",
	Short: "Store a file as an artifact",
	Long: `Store a file as an artifact. Files at or above min_size_for_sharding are split
into shard_size pieces; smaller files are stored as a single object.`,
	Args: cobra.ExactArgs(1),
	RunE: runShard,
}

func init() {
	rootCmd.AddCommand(shardCmd)

	f := shardCmd.Flags()
	f.String("id", "", "Artifact id (defaults to the file name)")
	f.String("mime_type", "", "MIME type recorded in the manifest")
	f.String("created_by", "", "Creator recorded in the manifest")
	f.StringToString("meta", nil, "Metadata key=value pairs recorded in the manifest")
	f.Bool("json", false, "Print the manifest as JSON")
}

// withRuntime builds the configured runtime, runs fn and releases everything.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *artifactRuntime) error) error {
	opts, err := loadArtifactOpts(cmd)
	if err != nil {
		return err
	}
	ctx := logger.WithOperation(cmd.Context())
	rt, err := newArtifactRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(ctx, rt)
}

func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *artifact.Service) error) error {
	return withRuntime(cmd, func(ctx context.Context, rt *artifactRuntime) error {
		return fn(ctx, rt.svc)
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runShard(cmd *cobra.Command, args []string) error {
	path := args[0]
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	mimeType, _ := cmd.Flags().GetString("mime_type")
	createdBy, _ := cmd.Flags().GetString("created_by")
	meta, _ := cmd.Flags().GetStringToString("meta")
	asJSON, _ := cmd.Flags().GetBool("json")

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return withService(cmd, func(ctx context.Context, svc *artifact.Service) error {
		res, err := svc.Shard(ctx, data, id, &types.ShardOptions{
			OriginalName: filepath.Base(path),
			MimeType:     mimeType,
			CreatedBy:    createdBy,
			Metadata:     meta,
		})
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, res.Manifest)
		}

		m := res.Manifest
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s on %s: %s in %d shard(s), %s on disk\n",
			m.ArtifactID, m.StorageBackend,
			humanize.IBytes(uint64(m.OriginalSize)), m.TotalShards,
			humanize.IBytes(uint64(m.StoredBytes())))
		return nil
	})
}
