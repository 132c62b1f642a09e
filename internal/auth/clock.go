// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import "time"

// Clock is the source of the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
