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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eden-shiwm/replqueue/pkg/coordinator"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
)

func TestPullLogsToQueue(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	client.Seed("/tables/t1/log/log-0000000000", encodeEntry(t, wireEntry{
		Type: int(logentry.GetPart), NewPartName: "all_1_1_0", CreateTime: time.Unix(100, 0),
	}))
	client.Seed("/tables/t1/log/log-0000000001", encodeEntry(t, wireEntry{
		Type: int(logentry.GetPart), NewPartName: "all_2_2_0", CreateTime: time.Unix(200, 0),
	}))

	pulled, err := q.PullLogsToQueue(ctx, fakeCodec{})
	require.NoError(t, err)
	require.Equal(t, 2, pulled)
	require.Equal(t, 2, q.GetStatus().QueueSize)

	pointerData, err := client.Get(ctx, "/tables/t1/replicas/r1/log_pointer")
	require.NoError(t, err)
	require.Equal(t, "2", string(pointerData))

	// A second pull sees nothing new.
	pulled, err = q.PullLogsToQueue(ctx, fakeCodec{})
	require.NoError(t, err)
	require.Zero(t, pulled)
}

func TestPullLogsToQueuePublishesVirtualPartsImmediately(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	client.Seed("/tables/t1/log/log-0000000000", encodeEntry(t, wireEntry{
		Type: int(logentry.GetPart), NewPartName: "all_1_1_0", CreateTime: time.Unix(100, 0),
	}))

	pulled, err := q.PullLogsToQueue(ctx, fakeCodec{})
	require.NoError(t, err)
	require.Equal(t, 1, pulled)

	// virtual_parts must already contain the pulled entry's part before it
	// ever executes (spec §8 Scenario 1).
	info, err := partinfo.Parse("all_1_1_0")
	require.NoError(t, err)
	q.mu.Lock()
	containing, ok := q.virtualParts.GetContainingPart(info)
	q.mu.Unlock()
	require.True(t, ok)
	require.Equal(t, "all_1_1_0", containing.Name())
}

func TestInsertPersistsSelfOriginatedEntry(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	entry := &logentry.Entry{Type: logentry.DropRange, NewPartName: "all_0_10_2", CreateTime: time.Unix(1, 0)}
	err := q.Insert(ctx, entry, encodeEntry(t, wireEntry{Type: int(logentry.DropRange), NewPartName: "all_0_10_2"}))
	require.NoError(t, err)
	require.NotEmpty(t, entry.ZnodeName)
	require.Equal(t, 1, q.GetStatus().QueueSize)

	children, err := client.GetChildren(ctx, "/tables/t1/replicas/r1/queue", nil)
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestPullLogsToQueueRefreshesQuorumParts(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	client.Seed("/tables/t1/log/log-0000000000", encodeEntry(t, wireEntry{
		Type: int(logentry.GetPart), NewPartName: "all_1_1_0", CreateTime: time.Unix(100, 0),
	}))
	client.Seed("/tables/t1/quorum/last_part", []byte("all_1_1_0"))

	_, err := q.PullLogsToQueue(ctx, fakeCodec{})
	require.NoError(t, err)

	q.mu.Lock()
	last := q.lastQuorumPart
	inprogress := q.inprogressQuorumPart
	q.mu.Unlock()
	require.Equal(t, "all_1_1_0", last)
	require.Empty(t, inprogress)
}

func TestRefreshCurrentInsertsKeepsOnlyLiveLocks(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	lockPath := coordinator.NewLockPath("/tables/t1")
	client.Seed(lockPath, nil)
	client.Seed("/tables/t1/block_numbers/p1/block-0000000005", []byte(lockPath))
	// A stale block whose holder never registered under /temp.
	client.Seed("/tables/t1/block_numbers/p1/block-0000000009", []byte("/tables/t1/temp/abandonable_lock-gone"))

	require.NoError(t, q.refreshCurrentInsertsLocked(ctx))

	q.mu.Lock()
	set, ok := q.currentInserts["p1"]
	q.mu.Unlock()
	require.True(t, ok)
	require.Equal(t, 1, set.Len())
	_, found := set.Get(5)
	require.True(t, found)
	_, found = set.Get(9)
	require.False(t, found)
}

func TestRefreshCurrentInsertsEmptyWhenNoLiveLocks(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	client.Seed("/tables/t1/block_numbers/p1/block-0000000005", []byte("/tables/t1/temp/abandonable_lock-gone"))

	require.NoError(t, q.refreshCurrentInsertsLocked(ctx))

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Empty(t, q.currentInserts)
}

func TestPullLogsToQueueBatches(t *testing.T) {
	q, client := newTestQueue()
	q.cfg.MaxMultiOps = 2 // 1 usable slot per batch after reserving log_pointer
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		client.Seed(logName(i), encodeEntry(t, wireEntry{
			Type: int(logentry.GetPart), NewPartName: partName(i), CreateTime: time.Unix(int64(i), 0),
		}))
	}

	pulled, err := q.PullLogsToQueue(ctx, fakeCodec{})
	require.NoError(t, err)
	require.Equal(t, 3, pulled)
	require.Equal(t, 3, q.GetStatus().QueueSize)
}

func TestLoadPersistedQueue(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	client.Seed("/tables/t1/replicas/r1/queue/queue-0000000000", encodeEntry(t, wireEntry{
		Type: int(logentry.GetPart), NewPartName: "all_1_1_0", CreateTime: time.Unix(1, 0),
	}))

	require.NoError(t, q.Load(ctx, fakeCodec{}))
	require.Equal(t, 1, q.GetStatus().QueueSize)
}

func TestUpdateMutations(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()

	client.Seed("/tables/t1/mutations/mutation-0000000000", encodeMutation(t, wireMutation{
		BlockNumbers: map[string]int64{"20260101": 5},
	}))

	added, err := q.UpdateMutations(ctx, fakeCodec{})
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, int64(5), q.GetCurrentMutationVersion("20260101", 100))

	// Fetching again finds nothing new.
	added, err = q.UpdateMutations(ctx, fakeCodec{})
	require.NoError(t, err)
	require.Zero(t, added)
}

func TestUpdateTimesInCoordinator(t *testing.T) {
	q, client := newTestQueue()
	ctx := context.Background()
	q.mu.Lock()
	q.minUnprocessedInsertTime = time.Unix(1, 0)
	q.maxProcessedInsertTime = time.Unix(2, 0)
	q.mu.Unlock()

	require.NoError(t, q.UpdateTimesInCoordinator(ctx))
	_, err := client.Get(ctx, "/tables/t1/replicas/r1/min_unprocessed_insert_time")
	require.NoError(t, err)
	_, err = client.Get(ctx, "/tables/t1/replicas/r1/max_processed_insert_time")
	require.NoError(t, err)
}

func logName(i int) string {
	return fmt.Sprintf("/tables/t1/log/log-%010d", i)
}

func partName(i int) string {
	return fmt.Sprintf("all_%d_%d_0", i+1, i+1)
}
