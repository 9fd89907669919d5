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

import "github.com/cockroachdb/errors"

// errUnfinished marks the error class returned when a range-disabling
// operation cannot complete because in-flight work still conflicts with
// it (spec §7 "unfinished"). Callers branch on this with errors.Is rather
// than string-matching the message.
var errUnfinished = errors.New("unfinished")

// IsUnfinished reports whether err is (or wraps) the unfinished error
// class: the caller should retry once the reported conflicts drain.
func IsUnfinished(err error) bool {
	return errors.Is(err, errUnfinished)
}
