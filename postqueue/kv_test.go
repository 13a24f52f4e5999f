// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postqueue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteKV_RoundTrip(t *testing.T) {
	kv, err := OpenSQLiteKV(":memory:")
	require.NoError(t, err)
	defer kv.Close()

	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []byte(`{"a":1}`)))
	value, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(value))

	// Overwrite under the same key.
	require.NoError(t, kv.Set(ctx, "k", []byte(`{"a":2}`)))
	value, _, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":2}`, string(value))
}

func TestSQLiteKV_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	kv, err := OpenSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, queueKey, []byte(`[]`)))
	require.NoError(t, kv.Close())

	kv, err = OpenSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()

	value, ok, err := kv.Get(ctx, queueKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "[]", string(value))
}
