// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	zctx "github.com/LeeDigitalWorks/zapartifact/pkg/context"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtx_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	assert.Same(t, &globalLogger, Ctx(context.Background()))
	assert.Same(t, &globalLogger, Ctx(nil)) //nolint:staticcheck
}

func TestWithArtifact(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := WithArtifact(WithLogger(context.Background(), &base), "a-42")

	Ctx(ctx).Info().Msg("hello")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "a-42", event["artifact_id"])
	assert.Equal(t, "hello", event["message"])
}

func TestWithOperation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := WithOperation(WithLogger(context.Background(), &base))

	Ctx(ctx).Info().Msg("step")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, zctx.OperationID(ctx), event["op_id"])
	assert.NotEmpty(t, event["op_id"])
}
