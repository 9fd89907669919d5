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

// DefaultMaxMultiOps is the default Config.MaxMultiOps, the per-batch op
// budget for coordinator multi-requests (spec §4.D step 6: "the coordinator's per-multi-request size
// cap"). The constant is the original's: chosen with margin against a 1MiB
// total-request-size limit and ~10KiB average entry size.
const DefaultMaxMultiOps = 100

// Config carries the knobs New needs. It is passed explicitly rather than
// read from package-level state, following the teacher's convention of
// constructing queues (and queue-like things such as raftLogQueue) with an
// explicit config struct.
type Config struct {
	// SharedPath is the coordinator subtree shared by every replica of the
	// table (<root> in spec §6): <SharedPath>/log, /mutations, /temp,
	// /block_numbers, /quorum.
	SharedPath string
	// ReplicaPath is this replica's own subtree (<replica> in spec §6):
	// <ReplicaPath>/queue, /log_pointer, /min_unprocessed_insert_time,
	// /max_processed_insert_time.
	ReplicaPath string
	// MaxMultiOps bounds one pullLogsToQueue batch: MaxMultiOps-1 log-entry
	// creates plus the log_pointer set. A batch that also moves
	// min_unprocessed_insert_time carries one op more. Zero means
	// DefaultMaxMultiOps.
	MaxMultiOps int
	// Merger reports the merge executor's cancellation and
	// concurrency-limit state (spec §4.E rule 2). It is an external
	// collaborator; this module never selects or runs merges.
	Merger MergeExecutor
	// PartSizes reports the on-disk size of locally-materialized parts, so
	// admission can bound sum_parts_size_in_bytes for a candidate merge.
	// It is an external collaborator (the on-disk part store, spec §1).
	PartSizes PartSizer
}

func (c Config) maxMultiOps() int {
	if c.MaxMultiOps <= 0 {
		return DefaultMaxMultiOps
	}
	return c.MaxMultiOps
}

// MergeExecutor is the narrow view of the merge executor the admission
// predicates consult (spec §4.E rule 2, §5 "Cancellation").
type MergeExecutor interface {
	// MergesCancelled reports the executor's cooperative cancel flag.
	MergesCancelled() bool
	// MaxPartsSizeForMerge is the largest sum-of-input-bytes the executor
	// is currently willing to admit, given its own concurrency-limit
	// state. It may be smaller than the configured maximum when the
	// executor's worker pool is near saturation.
	MaxPartsSizeForMerge() int64
	// MaxPartsSizeForMergeAtMaxSpace is the configured ceiling used
	// nowhere but as the comparison point in spec §4.E rule 2 ("the
	// executor's current max_parts_size_for_merge is not the configured
	// maximum").
	MaxPartsSizeForMergeAtMaxSpace() int64
}

// PartSizer is the narrow view of the on-disk part store the admission
// predicates consult to size a candidate merge (spec §4.E rule 2).
type PartSizer interface {
	// PartBytesOnDisk returns the size of a locally-materialized part in
	// state PreCommitted, Committed, or Outdated, and whether it is
	// present in one of those states at all.
	PartBytesOnDisk(partName string) (bytes int64, ok bool)
}
