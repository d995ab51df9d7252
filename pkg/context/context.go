// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package context tags a context with an operation id so log lines and
// error reports from one CLI invocation or request can be correlated.
package context

import (
	"context"

	"github.com/google/uuid"
)

type operationID struct{}

// WithOperationID returns c tagged with an operation id. An id already
// present is kept.
func WithOperationID(c context.Context) (context.Context, string) {
	if id, ok := c.Value(operationID{}).(string); ok {
		return c, id
	}
	id := uuid.NewString()
	return context.WithValue(c, operationID{}, id), id
}

// FromOperationID returns c tagged with a caller supplied id
func FromOperationID(c context.Context, id string) context.Context {
	return context.WithValue(c, operationID{}, id)
}

// OperationID returns the id stored in c, or ""
func OperationID(c context.Context) string {
	id, _ := c.Value(operationID{}).(string)
	return id
}
