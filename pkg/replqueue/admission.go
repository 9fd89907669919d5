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
	"fmt"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
)

// ShouldExecuteLogEntry decides whether entry may run right now, and if
// not, a human-readable reason a caller can record as the entry's
// postpone reason (spec §4.E). Callers hold no lock; ShouldExecuteLogEntry
// takes q.mu itself.
func (q *Queue) ShouldExecuteLogEntry(entry *logentry.Entry) (ok bool, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shouldExecuteLogEntryLocked(entry)
}

func (q *Queue) shouldExecuteLogEntryLocked(entry *logentry.Entry) (bool, string) {
	if entry.CurrentlyExecuting {
		return false, "already executing"
	}

	switch entry.Type {
	case logentry.MergeParts, logentry.MutatePart:
		// The original applies the identical merge-admission checks to
		// MERGE_PARTS and MUTATE_PART entries alike (they share one code
		// path in shouldExecuteLogEntry): future_parts membership per
		// source, the merge executor's cancellation flag, and the
		// summed-size-vs-max_parts_size_for_merge comparison.
		ok, reason := q.canMergePartsLocked(entry.PartsToMerge)
		if !ok {
			return false, reason
		}
	case logentry.ClearColumn:
		if conflicts := q.conflictsForClearColumnLocked(entry); len(conflicts) > 0 {
			return false, fmt.Sprintf("waiting for %d conflicting entries to finish", len(conflicts))
		}
	}

	if entry.Type.ProducesPart() {
		if reason, blocked := q.notCoveredByFuturePartsLocked(entry.NewPartName); blocked {
			return false, reason
		}
	}
	return true, ""
}

// notCoveredByFuturePartsLocked implements spec §4.E's
// isNotCoveredByFuturePartsImpl: it fails if newPartName is already in
// future_parts, or if any member of future_parts contains it. Caller
// holds q.mu.
func (q *Queue) notCoveredByFuturePartsLocked(newPartName string) (reason string, blocked bool) {
	if _, ok := q.futureParts[newPartName]; ok {
		return fmt.Sprintf("part %s is already reserved by an in-flight entry", newPartName), true
	}
	info, err := partinfo.Parse(newPartName)
	if err != nil {
		return "", false
	}
	for reserved := range q.futureParts {
		reservedInfo, err := partinfo.Parse(reserved)
		if err != nil {
			continue
		}
		if partinfo.Contains(reservedInfo, info) {
			return fmt.Sprintf("covered by in-flight part %s", reserved), true
		}
	}
	return "", false
}

// canMergePartsLocked implements spec §4.E rule 2, shared by MERGE_PARTS
// and MUTATE_PART entries alike: every source part must not itself be
// reserved in future_parts (a prerequisite still being produced), and while
// the merge executor's current size limit is below its configured maximum,
// the summed source size must not exceed that current limit. It does
// not require a source part to already exist as a committed part — even
// when a source is still missing, the merge should be attempted rather
// than blocked, so that a missing part falls through to a fetch instead
// of stalling the merge admission check (original_source's
// shouldExecuteLogEntry: "even if all the necessary parts for the merge
// are not present, you should try to make a merge").
func (q *Queue) canMergePartsLocked(sources []string) (bool, string) {
	var sum int64
	for _, name := range sources {
		if _, ok := q.futureParts[name]; ok {
			return false, fmt.Sprintf("source part %s is still being produced", name)
		}
		if name == q.lastQuorumPart || name == q.inprogressQuorumPart {
			return false, fmt.Sprintf("source part %s is a quorum part", name)
		}
		if q.cfg.PartSizes != nil {
			if bytes, ok := q.cfg.PartSizes.PartBytesOnDisk(name); ok {
				sum += bytes
			}
		}
	}

	if q.cfg.Merger != nil && q.cfg.Merger.MergesCancelled() {
		return false, "merges are cancelled"
	}

	if q.cfg.Merger != nil {
		limit := q.cfg.Merger.MaxPartsSizeForMerge()
		atMax := q.cfg.Merger.MaxPartsSizeForMergeAtMaxSpace()
		if limit > 0 && limit != atMax && sum > limit {
			return false, fmt.Sprintf("sum part size %d exceeds current max_parts_size_for_merge %d (below configured max %d)", sum, limit, atMax)
		}
	}
	return true, ""
}

// CanMergeParts is the planner-facing pairwise admission check (spec §4.E
// "canMergeParts(left, right)"): a merge selector calls this to decide
// whether two adjacent parts may be proposed for a merge, before any
// MERGE_PARTS log entry exists. It is distinct from canMergePartsLocked,
// which re-checks an already-created entry's whole parts_to_merge list.
func (q *Queue) CanMergeParts(leftName, rightName string) (bool, string) {
	left, err := partinfo.Parse(leftName)
	if err != nil {
		return false, fmt.Sprintf("malformed part name %s", leftName)
	}
	right, err := partinfo.Parse(rightName)
	if err != nil {
		return false, fmt.Sprintf("malformed part name %s", rightName)
	}
	if leftName == rightName {
		return false, "cannot merge a part with itself"
	}
	if left.PartitionID != right.PartitionID {
		return false, "parts belong to different partitions"
	}
	if right.MinBlock < left.MinBlock {
		left, right = right, left
		leftName, rightName = rightName, leftName
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, side := range []struct {
		name string
		info partinfo.Info
	}{{leftName, left}, {rightName, right}} {
		existing, ok := q.virtualParts.GetContainingPart(side.info)
		if !ok || existing.Name() != side.name {
			return false, "a merge has already been assigned"
		}
		if side.name == q.lastQuorumPart || side.name == q.inprogressQuorumPart {
			return false, fmt.Sprintf("part %s is a quorum part", side.name)
		}
	}

	if right.MinBlock > left.MaxBlock+1 {
		gap := partinfo.Info{
			PartitionID: left.PartitionID,
			MinBlock:    left.MaxBlock + 1,
			MaxBlock:    right.MinBlock - 1,
			Level:       math.MaxInt32,
		}
		if set, ok := q.currentInserts[left.PartitionID]; ok {
			blocked := false
			set.Ascend(left.MaxBlock+1, func(b int64) bool {
				if b >= right.MinBlock {
					return false
				}
				blocked = true
				return false
			})
			if blocked {
				return false, "an insert may still land in the gap between the parts"
			}
		}
		if covered := q.nextVirtualParts.GetPartsCoveredBy(gap); len(covered) > 0 {
			return false, "an unready part fills the gap between the parts"
		}
	}

	if q.getCurrentMutationVersionLocked(left.PartitionID, left.DataVersion()) !=
		q.getCurrentMutationVersionLocked(right.PartitionID, right.DataVersion()) {
		return false, "mutation versions disagree"
	}
	return true, ""
}

// getCurrentMutationVersionLocked returns the highest mutation block
// number less than or equal to dataVersion that has been indexed for
// partition, or 0 if none (spec §4.F "current mutation version").
func (q *Queue) getCurrentMutationVersionLocked(partition string, dataVersion int64) int64 {
	set, ok := q.mutationsByPartition[partition]
	if !ok {
		return 0
	}
	var version int64
	set.Ascend(mutationBlock{blockNumber: 0}, func(mb mutationBlock) bool {
		if mb.blockNumber > dataVersion {
			return false
		}
		version = mb.blockNumber
		return true
	})
	return version
}

// GetCurrentMutationVersion is the exported, locking form of
// getCurrentMutationVersionLocked, used by callers deciding whether a
// locally-materialized part is fully mutated (spec §4.F).
func (q *Queue) GetCurrentMutationVersion(partition string, dataVersion int64) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getCurrentMutationVersionLocked(partition, dataVersion)
}

// CanMutatePart is the public admission check spec §4.E "canMutatePart":
// a mutation planner calls this, before creating a MUTATE_PART log entry,
// to decide whether partInfo should be rewritten. It succeeds iff a
// mutation is indexed for partInfo's partition, partInfo is its own
// containing virtual part (no covering merge has already been assigned
// over it), and the largest indexed mutation version for that partition
// exceeds partInfo's current data version — in which case that largest
// version is returned as desiredVersion.
func (q *Queue) CanMutatePart(partInfo partinfo.Info) (desiredVersion int64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	set, exists := q.mutationsByPartition[partInfo.PartitionID]
	if !exists {
		return 0, false
	}
	containing, has := q.virtualParts.GetContainingPart(partInfo)
	if !has || containing != partInfo {
		return 0, false
	}
	largest, hasMax := set.Max()
	if !hasMax || largest.blockNumber <= partInfo.DataVersion() {
		return 0, false
	}
	return largest.blockNumber, true
}

// GetMutationCommands concatenates, in block-number order, every
// mutation command with version strictly greater than partInfo's current
// data version and less than or equal to desiredVersion (spec §4.E
// "getMutationCommands"). It fails if desiredVersion is not itself an
// indexed mutation block for partInfo's partition.
func (q *Queue) GetMutationCommands(partInfo partinfo.Info, desiredVersion int64) ([]logentry.Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	set, ok := q.mutationsByPartition[partInfo.PartitionID]
	if !ok {
		return nil, errors.Newf("no mutations indexed for partition %s", partInfo.PartitionID)
	}
	present := false
	set.Ascend(mutationBlock{blockNumber: desiredVersion}, func(mb mutationBlock) bool {
		present = mb.blockNumber == desiredVersion
		return false
	})
	if !present {
		return nil, errors.Newf("mutation version %d not present for partition %s", desiredVersion, partInfo.PartitionID)
	}

	var out []logentry.Command
	set.Ascend(mutationBlock{blockNumber: partInfo.DataVersion() + 1}, func(mb mutationBlock) bool {
		if mb.blockNumber > desiredVersion {
			return false
		}
		out = append(out, mb.mutation.Commands...)
		return true
	})
	return out, nil
}

// conflictsForClearColumnLocked implements spec §4.E's
// getConflictsForClearColumnCommand(entry): every currently_executing
// entry other than entry itself whose work overlaps the clear's part
// range — a MERGE_PARTS|GET_PART|MUTATE_PART|ATTACH_PART producing a part
// contained by entry.new_part_name, or another CLEAR_COLUMN in the same
// partition_id. The scan covers the whole queue regardless of position,
// since selecting an entry for execution splices it to the back
// (executing.go's SelectAndBeginExecuting), so a conflicting executing
// entry can sit anywhere relative to entry.
func (q *Queue) conflictsForClearColumnLocked(entry *logentry.Entry) []*logentry.Entry {
	target, err := partinfo.Parse(entry.NewPartName)
	if err != nil {
		return nil
	}
	var conflicts []*logentry.Entry
	for e := q.queue.Front(); e != nil; e = e.Next() {
		other := e.Value.(*logentry.Entry)
		if other == entry || !other.CurrentlyExecuting {
			continue
		}
		if other.Type == logentry.ClearColumn {
			otherInfo, err := partinfo.Parse(other.NewPartName)
			if err == nil && otherInfo.PartitionID == target.PartitionID {
				conflicts = append(conflicts, other)
			}
			continue
		}
		if !other.Type.ProducesPart() || other.NewPartName == "" {
			continue
		}
		otherInfo, err := partinfo.Parse(other.NewPartName)
		if err != nil {
			continue
		}
		if partinfo.Contains(target, otherInfo) {
			conflicts = append(conflicts, other)
		}
	}
	return conflicts
}
