// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package replqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
)

func TestSelectAndBeginExecutingThenRelease(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	entry := &logentry.Entry{
		ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_1_1_0", CreateTime: time.Unix(1, 0),
	}
	mustInsert(t, q, entry)

	h := q.SelectAndBeginExecuting(ctx)
	require.NotNil(t, h)
	require.True(t, h.Entry().CurrentlyExecuting)
	require.Equal(t, 1, h.Entry().NumTries)
	require.Contains(t, q.futureParts, "all_1_1_0")

	// While executing, a second selection round finds nothing.
	require.Nil(t, q.SelectAndBeginExecuting(ctx))

	h.Release(ctx, nil)
	require.False(t, entry.CurrentlyExecuting)
	require.NotContains(t, q.futureParts, "all_1_1_0")
	require.Equal(t, 1, q.virtualParts.Len())
	require.Zero(t, q.GetStatus().QueueSize, "successful entry is removed from the queue")
}

func TestReleaseWithErrorKeepsEntryQueued(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	entry := &logentry.Entry{
		ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_1_1_0", CreateTime: time.Unix(1, 0),
	}
	mustInsert(t, q, entry)

	h := q.SelectAndBeginExecuting(ctx)
	require.NotNil(t, h)
	h.Release(ctx, assert.AnError)

	require.False(t, entry.CurrentlyExecuting)
	require.Equal(t, assert.AnError, entry.Exception)
	require.Equal(t, 1, q.GetStatus().QueueSize, "failed entry stays queued for retry")
	require.Zero(t, q.virtualParts.Len())
}

func TestReleaseUsesActualPartName(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	entry := &logentry.Entry{
		ZnodeName: "log-1", Type: logentry.MergeParts, NewPartName: "all_1_3_1",
		PartsToMerge: []string{"all_1_1_0", "all_2_2_0", "all_3_3_0"}, CreateTime: time.Unix(1, 0),
	}
	q.InitVirtualParts([]string{"all_1_1_0", "all_2_2_0", "all_3_3_0"})
	mustInsert(t, q, entry)

	h := q.SelectAndBeginExecuting(ctx)
	require.NotNil(t, h)
	h.SetActualPartName("all_1_2_1")
	require.Contains(t, q.futureParts, "all_1_3_1", "the originally reserved name stays tagged")
	require.Contains(t, q.futureParts, "all_1_2_1", "the actual name is reserved too")

	h.Release(ctx, nil)

	got, ok := q.virtualParts.GetContainingPart(partinfo.MustParse("all_1_1_0"))
	require.True(t, ok)
	require.Equal(t, "all_1_2_1", got.Name())
	require.NotContains(t, q.futureParts, "all_1_3_1")
	require.NotContains(t, q.futureParts, "all_1_2_1")
	require.Empty(t, entry.ActualNewPartName)
}
