// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package partinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	info, err := Parse("all_1_2_1")
	require.NoError(t, err)
	require.Equal(t, Info{PartitionID: "all", MinBlock: 1, MaxBlock: 2, Level: 1}, info)
	require.Equal(t, "all_1_2_1", info.Name())

	info, err = Parse("all_3_3_0_7")
	require.NoError(t, err)
	require.Equal(t, Info{PartitionID: "all", MinBlock: 3, MaxBlock: 3, Level: 0, MutationVersion: 7}, info)
	require.Equal(t, "all_3_3_0_7", info.Name())
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("all_1_2")
	require.Error(t, err)
	_, err = Parse("all_x_2_0")
	require.Error(t, err)
}

func TestDataVersion(t *testing.T) {
	require.Equal(t, int64(3), MustParse("partA_3_3_0").DataVersion())
	require.Equal(t, int64(7), MustParse("partA_3_3_0_7").DataVersion())
}

func TestContains(t *testing.T) {
	outer := MustParse("all_1_10_2")
	require.True(t, Contains(outer, MustParse("all_1_10_2")))
	require.True(t, Contains(outer, MustParse("all_3_8_1")))
	require.False(t, Contains(outer, MustParse("all_1_11_2")), "block range not covered")
	require.False(t, Contains(outer, MustParse("all_1_10_3")), "level not dominated")
	require.False(t, Contains(outer, MustParse("other_1_5_0")), "different partition")
}

func TestIntersects(t *testing.T) {
	require.True(t, Intersects(MustParse("all_1_5_0"), MustParse("all_5_10_0")))
	require.False(t, Intersects(MustParse("all_1_5_0"), MustParse("all_6_10_0")))
	require.False(t, Intersects(MustParse("all_1_5_0"), MustParse("other_1_5_0")))
}
