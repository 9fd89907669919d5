// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package partinfo implements the part-name algebra: parsing a part name
// into its (partition, block range, level, mutation version) tuple and the
// pure containment/intersection predicates the rest of the queue is built
// on. It has no dependency on the queue or the coordinator and is total —
// every exported function here always returns, never blocks.
package partinfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Info identifies a part: an immutable, self-contained slice of a
// partition at a level and mutation version.
type Info struct {
	PartitionID     string
	MinBlock        int64
	MaxBlock        int64
	Level           int32
	MutationVersion int64
}

// Name renders Info back to its canonical "<partition>_<min>_<max>_<level>"
// or, when MutationVersion is set, "<partition>_<min>_<max>_<level>_<mut>"
// form.
func (i Info) Name() string {
	if i.MutationVersion == 0 {
		return fmt.Sprintf("%s_%d_%d_%d", i.PartitionID, i.MinBlock, i.MaxBlock, i.Level)
	}
	return fmt.Sprintf("%s_%d_%d_%d_%d", i.PartitionID, i.MinBlock, i.MaxBlock, i.Level, i.MutationVersion)
}

// IsZero reports whether i is the sentinel "none" value.
func (i Info) IsZero() bool {
	return i == Info{}
}

// DataVersion is the version a part's mutation index lookups key off of:
// its explicit mutation version if nonzero, else its min block, matching
// the original's data_version = part_info.version ? part_info.version :
// part_info.min_block.
func (i Info) DataVersion() int64 {
	if i.MutationVersion != 0 {
		return i.MutationVersion
	}
	return i.MinBlock
}

// Parse decodes a part name into its constituent fields. Accepted forms are
// "<partition>_<min>_<max>_<level>" and
// "<partition>_<min>_<max>_<level>_<mutation>".
func Parse(name string) (Info, error) {
	fields := strings.Split(name, "_")
	if len(fields) != 4 && len(fields) != 5 {
		return Info{}, errors.Newf("malformed part name %q", name)
	}
	min, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Info{}, errors.Wrapf(err, "malformed part name %q: min block", name)
	}
	max, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Info{}, errors.Wrapf(err, "malformed part name %q: max block", name)
	}
	level, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return Info{}, errors.Wrapf(err, "malformed part name %q: level", name)
	}
	info := Info{
		PartitionID: fields[0],
		MinBlock:    min,
		MaxBlock:    max,
		Level:       int32(level),
	}
	if len(fields) == 5 {
		mut, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return Info{}, errors.Wrapf(err, "malformed part name %q: mutation version", name)
		}
		info.MutationVersion = mut
	}
	return info, nil
}

// MustParse is Parse but panics on error; used in tests and in constructing
// well-known fixtures.
func MustParse(name string) Info {
	info, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return info
}

// Contains reports whether outer fully dominates inner: same partition,
// outer's block range covers inner's, and outer's level is at least
// inner's.
func Contains(outer, inner Info) bool {
	return outer.PartitionID == inner.PartitionID &&
		outer.MinBlock <= inner.MinBlock &&
		outer.MaxBlock >= inner.MaxBlock &&
		outer.Level >= inner.Level
}

// Intersects reports whether a and b are in the same partition and their
// block ranges overlap, regardless of level.
func Intersects(a, b Info) bool {
	return a.PartitionID == b.PartitionID &&
		a.MinBlock <= b.MaxBlock &&
		b.MinBlock <= a.MaxBlock
}

// ContainsName is Contains applied to a raw outer part name; it panics if
// outerName does not parse, since callers only ever pass already-validated
// queue-entry part names (its one caller is entryProducesContaining in the
// replqueue package's queue.go).
func ContainsName(outerName string, inner Info) bool {
	outer := MustParse(outerName)
	return Contains(outer, inner)
}
