// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package coordinator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTestClientGetSetRemove(t *testing.T) {
	ctx := context.Background()
	c := NewTestClient()

	_, err := c.Get(ctx, "/a/b")
	require.ErrorIs(t, err, ErrNoNode)

	require.NoError(t, c.Set(ctx, "/a/b", []byte("v")))
	data, err := c.Get(ctx, "/a/b")
	require.NoError(t, err)
	require.Equal(t, "v", string(data))

	children, err := c.GetChildren(ctx, "/a", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, children)

	require.NoError(t, c.Remove(ctx, "/a/b"))
	_, err = c.Get(ctx, "/a/b")
	require.ErrorIs(t, err, ErrNoNode)
}

func TestTestClientMultiPersistentSequential(t *testing.T) {
	ctx := context.Background()
	c := NewTestClient()

	results, err := c.Multi(ctx, []Op{
		{Type: OpCreate, Path: "/log/log-", Mode: PersistentSequential, Data: []byte("1")},
		{Type: OpCreate, Path: "/log/log-", Mode: PersistentSequential, Data: []byte("2")},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, strings.HasSuffix(results[0].PathCreated, "0000000000"))
	require.True(t, strings.HasSuffix(results[1].PathCreated, "0000000001"))

	children, err := c.GetChildren(ctx, "/log", nil)
	require.NoError(t, err)
	require.Len(t, children, 2)
}

func TestTestClientGetChildrenFiresWatch(t *testing.T) {
	ctx := context.Background()
	c := NewTestClient()
	c.Seed("/log", nil)

	watch := make(chan struct{})
	_, err := c.GetChildren(ctx, "/log", watch)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "/log/child", []byte("x")))

	select {
	case <-watch:
	default:
		t.Fatal("watch was not fired by Set")
	}
}

func TestNewLockPath(t *testing.T) {
	p := NewLockPath("/tables/t1")
	require.True(t, strings.HasPrefix(p, "/tables/t1/temp/abandonable_lock-"))
}
