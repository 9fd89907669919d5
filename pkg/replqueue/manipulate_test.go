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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
)

func TestRemoveByPartName(t *testing.T) {
	q, _ := newTestQueue()
	e1 := &logentry.Entry{ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_1_1_0", CreateTime: time.Unix(1, 0)}
	e2 := &logentry.Entry{ZnodeName: "log-2", Type: logentry.GetPart, NewPartName: "all_2_2_0", CreateTime: time.Unix(2, 0)}
	mustInsert(t, q, e1)
	mustInsert(t, q, e2)

	removed := q.RemoveByPartName(context.Background(), "all_1_1_0")
	require.Len(t, removed, 1)
	require.Equal(t, "log-1", removed[0].ZnodeName)
	require.Equal(t, 1, q.GetStatus().QueueSize)
}

func TestRemovePartProducingOpsInRangeWaitsForExecuting(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	target := &logentry.Entry{ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_1_1_0", CreateTime: time.Unix(1, 0)}
	mustInsert(t, q, target)

	h := q.SelectAndBeginExecuting(ctx)
	require.NotNil(t, h)

	var wg sync.WaitGroup
	wg.Add(1)
	var removed []*logentry.Entry
	go func() {
		defer wg.Done()
		removed = q.RemovePartProducingOpsInRange(ctx, partinfo.Info{PartitionID: "all", MinBlock: 0, MaxBlock: 10, Level: 999}, nil)
	}()

	// give the goroutine a chance to reach WaitExecutionComplete
	time.Sleep(10 * time.Millisecond)
	h.Release(ctx, nil)
	wg.Wait()

	// Release already removed the entry on success, so the waiter sees an
	// empty queue and returns without anything left to remove.
	require.Empty(t, removed)
	require.Zero(t, q.GetStatus().QueueSize)
}

func TestMoveSiblingPartsForMergeToEndOfQueue(t *testing.T) {
	q, _ := newTestQueue()
	e1 := &logentry.Entry{ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_1_1_0", CreateTime: time.Unix(1, 0)}
	e2 := &logentry.Entry{ZnodeName: "log-2", Type: logentry.MergeParts, NewPartName: "all_1_2_1", PartsToMerge: []string{"all_1_1_0", "all_2_2_0"}, CreateTime: time.Unix(2, 0)}
	e3 := &logentry.Entry{ZnodeName: "log-3", Type: logentry.GetPart, NewPartName: "all_2_2_0", CreateTime: time.Unix(3, 0)}
	mustInsert(t, q, e1)
	mustInsert(t, q, e2)
	mustInsert(t, q, e3)

	siblings := q.MoveSiblingPartsForMergeToEndOfQueue("all_1_1_0")
	require.ElementsMatch(t, []string{"all_1_1_0", "all_2_2_0"}, siblings)

	q.mu.Lock()
	front := q.queue.Front().Value.(*logentry.Entry)
	q.mu.Unlock()
	require.Equal(t, "log-2", front.ZnodeName, "the merge itself was never a sibling and stays put")
}

func TestMoveSiblingPartsForMergeToEndOfQueueNoMatch(t *testing.T) {
	q, _ := newTestQueue()
	e1 := &logentry.Entry{ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_1_1_0", CreateTime: time.Unix(1, 0)}
	mustInsert(t, q, e1)

	require.Nil(t, q.MoveSiblingPartsForMergeToEndOfQueue("all_9_9_0"))
}

func TestAddFuturePartIfNotCoveredByThem(t *testing.T) {
	q, _ := newTestQueue()
	require.True(t, q.AddFuturePartIfNotCoveredByThem("all_1_10_2"))
	require.False(t, q.AddFuturePartIfNotCoveredByThem("all_1_10_2"), "duplicate reservation is rejected")
}

func TestDisableMergesAndFetchesInRangePanicsWithoutReservation(t *testing.T) {
	q, _ := newTestQueue()
	require.Panics(t, func() {
		_, _ = q.DisableMergesAndFetchesInRange(context.Background(), "all_1_10_2", partinfo.Info{PartitionID: "all", MinBlock: 1, MaxBlock: 10, Level: 999})
	})
}

func TestDisableMergesAndFetchesInRangeRemovesQueuedProducers(t *testing.T) {
	q, _ := newTestQueue()
	e := &logentry.Entry{ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_2_2_0", CreateTime: time.Unix(1, 0)}
	mustInsert(t, q, e)

	require.True(t, q.AddFuturePartIfNotCoveredByThem("all_1_10_2"))
	removed, err := q.DisableMergesAndFetchesInRange(context.Background(), "all_1_10_2", partinfo.Info{PartitionID: "all", MinBlock: 1, MaxBlock: 10, Level: 999})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	require.Zero(t, q.GetStatus().QueueSize)
}

func TestDisableMergesAndFetchesInRangeReturnsUnfinishedWhileExecuting(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	e := &logentry.Entry{ZnodeName: "log-1", Type: logentry.GetPart, NewPartName: "all_2_2_0", CreateTime: time.Unix(1, 0)}
	mustInsert(t, q, e)

	h := q.SelectAndBeginExecuting(ctx)
	require.NotNil(t, h)

	require.True(t, q.AddFuturePartIfNotCoveredByThem("all_1_10_2"))
	_, err := q.DisableMergesAndFetchesInRange(ctx, "all_1_10_2", partinfo.Info{PartitionID: "all", MinBlock: 1, MaxBlock: 10, Level: 999})
	require.True(t, IsUnfinished(err))

	h.Release(ctx, nil)
}

func TestDisableMergesInRange(t *testing.T) {
	q, _ := newTestQueue()
	merge := &logentry.Entry{ZnodeName: "log-1", Type: logentry.MergeParts, NewPartName: "all_1_2_1", PartsToMerge: []string{"all_1_1_0", "all_2_2_0"}, CreateTime: time.Unix(1, 0)}
	mustInsert(t, q, merge)

	removed := q.DisableMergesInRange(context.Background(), partinfo.Info{PartitionID: "all", MinBlock: 0, MaxBlock: 10, Level: 999})
	require.Len(t, removed, 1)
	require.Zero(t, q.GetStatus().QueueSize)
}
