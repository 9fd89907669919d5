// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package humanizeutil renders sizes the way postpone/log messages want to
// show them to a human, wrapping go-humanize the same way the teacher does.
package humanizeutil

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

// IBytes formats a signed byte count using binary (Ki/Mi/Gi) suffixes.
func IBytes(value int64) string {
	if value < 0 {
		return fmt.Sprintf("-%s", humanize.IBytes(uint64(-value)))
	}
	return humanize.IBytes(uint64(value))
}

// ParseBytes is the int64 counterpart of go-humanize's ParseBytes, used to
// parse the --max-merge-size flag in cmd/replqueuedemo.
func ParseBytes(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("parsing %q: invalid syntax", s)
	}
	var negative bool
	start := 0
	if s[0] == '-' {
		negative = true
		start = 1
	}
	v, err := humanize.ParseBytes(s[start:])
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("too large: %s", s)
	}
	if negative {
		return -int64(v), nil
	}
	return int64(v), nil
}

// BytesValue implements pflag.Value over an atomically-updated int64, so a
// flag can back a value read concurrently by a running queue.
type BytesValue struct {
	val   *int64
	isSet bool
}

var _ pflag.Value = &BytesValue{}

// NewBytesValue binds a BytesValue to val.
func NewBytesValue(val *int64) *BytesValue {
	return &BytesValue{val: val}
}

// Set implements pflag.Value.
func (b *BytesValue) Set(s string) error {
	v, err := ParseBytes(s)
	if err != nil {
		return err
	}
	atomic.StoreInt64(b.val, v)
	b.isSet = true
	return nil
}

// Type implements pflag.Value.
func (b *BytesValue) Type() string { return "bytes" }

// String implements pflag.Value.
func (b *BytesValue) String() string {
	if b.val == nil {
		return IBytes(0)
	}
	return IBytes(atomic.LoadInt64(b.val))
}

// IsSet reports whether Set has been called successfully.
func (b *BytesValue) IsSet() bool { return b.isSet }
