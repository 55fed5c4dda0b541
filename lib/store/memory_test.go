// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"testing"

	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/store/storetest"
)

func TestMemoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewMemory(store.MemoryConfig{})
	})
}
