// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"os"
	"sync"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

var (
	Env string

	once sync.Once
)

func IsLocal() bool {
	return Env == Local
}

func IsProduction() bool {
	return Env == Production
}

func IsTesting() bool {
	return Env == Testing
}

// parse maps ZAPARTIFACT_ENV to a known environment, defaulting to local
func parse(v string) string {
	switch v {
	case Production, Testing:
		return v
	default:
		return Local
	}
}

func init() {
	once.Do(func() {
		Env = parse(os.Getenv("ZAPARTIFACT_ENV"))
	})
}
