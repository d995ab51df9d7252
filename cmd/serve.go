// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/artifact"
	"github.com/LeeDigitalWorks/zapartifact/pkg/debug"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/gc"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the metrics and debug server with a warmed manifest cache",
	Long: `Warm the manifest cache from the catalog and serve /metrics, /health, /ready,
pprof and /debug/artifacts/stats until interrupted. Queued orphan shards are
swept every gc_interval.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// registerArtifactHandlers exposes artifact statistics on the debug mux.
// Must be called before debug.GetMux().
func registerArtifactHandlers(svc *artifact.Service) {
	debug.RegisterHandler("/debug/artifacts/stats", debug.JSONHandler(func(r *http.Request) (any, error) {
		return svc.Stats(r.Context())
	}))
	debug.RegisterHandler("/debug/artifacts/config", debug.JSONHandler(func(r *http.Request) (any, error) {
		return svc.Config(), nil
	}))
}

func registerGCHandlers(sweeper *gc.Sweeper) {
	debug.RegisterHandler("/debug/artifacts/orphans", debug.JSONHandler(func(r *http.Request) (any, error) {
		return sweeper.Pending()
	}))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	defer stop()

	debug.SetNotReady()

	return withRuntime(cmd, func(_ context.Context, rt *artifactRuntime) error {
		svc := rt.svc
		n, err := svc.Manifests().Warm(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("manifests", n).Msg("Warmed manifest cache")

		registerArtifactHandlers(svc)
		registerGCHandlers(rt.sweeper)

		addr := NewFlagLoader(cmd).String("debug_addr")
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		server := &http.Server{Handler: debug.GetMux(), ReadHeaderTimeout: 10 * time.Second}
		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("debug_addr", listener.Addr().String()).Msg("Starting debug server")
			errCh <- server.Serve(listener)
		}()

		rt.sweeper.Start()
		debug.SetReady()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}

		debug.SetNotReady()
		rt.sweeper.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		logger.Info().Msg("Shutting down")
		return server.Shutdown(shutdownCtx)
	})
}
