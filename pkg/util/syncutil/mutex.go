// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package syncutil provides mutex types matching the standard library's
// API but with hooks for lock-held assertions, mirrored from the teacher
// so call sites read identically to a package that ships its own deadlock
// detector build tag without actually carrying one here.
package syncutil

import "sync"

// A Mutex is a mutual exclusion lock. The zero value is an unlocked mutex.
type Mutex struct {
	sync.Mutex
}

// AssertHeld is a no-op: it never checks or panics. Call sites use it to
// declare a lock-held precondition that nothing enforces at runtime.
func (m *Mutex) AssertHeld() {}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}

// AssertHeld is a no-op declaring that the mutex is held for writing.
func (rw *RWMutex) AssertHeld() {}

// AssertRHeld is a no-op declaring that the mutex is held for reading.
func (rw *RWMutex) AssertRHeld() {}
