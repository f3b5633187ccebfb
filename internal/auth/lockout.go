// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package auth

import (
	"time"
)

// Lockout policy for repeated failed logins.
const (
	// LockoutDuration is the time an account is locked after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that triggers a lockout.
	LockoutThreshold = 7
)

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// ComputeLockoutTime returns the lockout timestamp for the given failure count.
// Returns nil if failures < LockoutThreshold.
func ComputeLockoutTime(failures int, now time.Time) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	lockout := now.Add(LockoutDuration)
	return &lockout
}

// failurePatch records one more failed attempt for u. A lock that has
// lapsed is cleared and counting starts over.
func failurePatch(u *User, now time.Time) UserPatch {
	failures := u.FailedAttempts + 1
	patch := UserPatch{FailedAttempts: &failures}
	if u.LockedUntil != nil && !IsLockedOut(u.LockedUntil, now) {
		failures = 1
		patch.ClearLockout = true
	}
	if until := ComputeLockoutTime(failures, now); until != nil {
		patch.LockedUntil = until
	}
	return patch
}
