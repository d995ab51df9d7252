// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/cmd"
	"github.com/LeeDigitalWorks/zapartifact/pkg/env"

	"github.com/getsentry/sentry-go"
)

func main() {
	// The DSN comes from SENTRY_DSN; without it the client is a no-op
	err := sentry.Init(sentry.ClientOptions{
		SampleRate:       1.0,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
		Release:          "zapartifact@" + cmd.Version,
		Environment:      env.Env,
		Debug:            env.IsLocal() && os.Getenv("SENTRY_DEBUG") != "",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v\n", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
