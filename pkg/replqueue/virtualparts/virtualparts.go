// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package virtualparts implements the virtual-part set (spec §4.B): the
// set of part names a replica plans to have, keyed so that "does some
// stored part contain this one" and "which stored parts does this one
// cover" are range scans rather than full-set walks.
package virtualparts

import (
	"math"

	"github.com/tidwall/btree"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
)

// Set holds part infos ordered by (partition, min block, max block, level)
// so that all parts of a partition are contiguous in iteration order. This
// is the same shape of problem the logtailreplay.PartitionState in the
// retrieval pack solves with a tidwall/btree.BTreeG per index; here a
// single ordered index suffices because every query is scoped to one
// partition_id.
type Set struct {
	tree *btree.BTreeG[partinfo.Info]
}

func less(a, b partinfo.Info) bool {
	if a.PartitionID != b.PartitionID {
		return a.PartitionID < b.PartitionID
	}
	if a.MinBlock != b.MinBlock {
		return a.MinBlock < b.MinBlock
	}
	if a.MaxBlock != b.MaxBlock {
		return a.MaxBlock < b.MaxBlock
	}
	return a.Level < b.Level
}

// New returns an empty virtual-part set.
func New() *Set {
	return &Set{tree: btree.NewBTreeG(less)}
}

// Add inserts name's part info and logically removes any already-present
// part strictly contained by it, matching spec §4.B ("add(name) inserts
// the name and ... removes any already-present names strictly contained by
// it"). Names that fail to parse are ignored; callers only ever pass
// coordinator-produced part names, which are assumed well-formed by the
// time they reach this layer.
func (s *Set) Add(name string) {
	info, err := partinfo.Parse(name)
	if err != nil {
		return
	}
	s.AddInfo(info)
}

// AddInfo is Add for a caller that already parsed the part name.
func (s *Set) AddInfo(info partinfo.Info) {
	for _, covered := range s.partsCoveredByLocked(info) {
		if covered != info {
			s.tree.Delete(covered)
		}
	}
	s.tree.Set(info)
}

// GetContainingPart returns the stored part containing info, if any. When
// multiple stored parts would contain info (which should not happen given
// Add's pruning, but is not assumed), the first encountered scanning from
// info's block range downward within the partition is returned.
func (s *Set) GetContainingPart(info partinfo.Info) (partinfo.Info, bool) {
	var found partinfo.Info
	ok := false
	pivot := partinfo.Info{
		PartitionID: info.PartitionID,
		MinBlock:    info.MinBlock,
		MaxBlock:    math.MaxInt64,
		Level:       math.MaxInt32,
	}
	s.tree.Descend(pivot, func(item partinfo.Info) bool {
		if item.PartitionID != info.PartitionID {
			return false
		}
		if partinfo.Contains(item, info) {
			found = item
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// GetPartsCoveredBy returns every stored part contained in info.
func (s *Set) GetPartsCoveredBy(info partinfo.Info) []partinfo.Info {
	return s.partsCoveredByLocked(info)
}

func (s *Set) partsCoveredByLocked(info partinfo.Info) []partinfo.Info {
	var out []partinfo.Info
	pivot := partinfo.Info{PartitionID: info.PartitionID, MinBlock: info.MinBlock}
	s.tree.Ascend(pivot, func(item partinfo.Info) bool {
		if item.PartitionID != info.PartitionID || item.MinBlock > info.MaxBlock {
			return false
		}
		if partinfo.Contains(info, item) {
			out = append(out, item)
		}
		return true
	})
	return out
}

// Len returns the number of stored parts.
func (s *Set) Len() int { return s.tree.Len() }

// Parts returns every stored part, in ascending (partition, block) order.
func (s *Set) Parts() []partinfo.Info {
	out := make([]partinfo.Info, 0, s.tree.Len())
	s.tree.Scan(func(item partinfo.Info) bool {
		out = append(out, item)
		return true
	})
	return out
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	return &Set{tree: s.tree.Copy()}
}
