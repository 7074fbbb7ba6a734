// Copyright 2016 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wave implements the staged-rollout wave scheduler: given a
// per-host seed and an Update's wave schedule, decide whether the update
// is ready for this host and how long to jitter before committing it.
package wave

import (
	"errors"
	"time"

	"github.com/coreos/updog/internal/updog/manifest"
)

// ErrSeedMissing is returned when the host has no persisted seed.
var ErrSeedMissing = errors.New("host seed is not set")

// ErrNoWave is returned when an Update has no wave schedule at all.
var ErrNoWave = errors.New("no wave defined for this update")

// Ready reports whether seed's wave has started for u, as of now.
func Ready(u *manifest.Update, seed *uint64, now time.Time) (bool, error) {
	if seed == nil {
		return false, ErrSeedMissing
	}

	if prev, ok := u.Waves.LastAtOrBefore(*seed); ok {
		return !prev.Start.After(now), nil
	}

	if last, ok := u.Waves.Last(); ok {
		return !last.Start.After(now), nil
	}

	return false, ErrNoWave
}

// Jitter returns the number of seconds to randomly sleep within before
// committing the update, or false if no jitter window applies (the wave
// for this seed has already fully opened, or there's no upcoming wave).
func Jitter(u *manifest.Update, seed *uint64, now time.Time) (uint64, bool) {
	if seed == nil {
		return 0, false
	}

	prev, haveprev := u.Waves.LastAtOrBefore(*seed)
	next, havenext := u.Waves.FirstAfter(*seed)
	if !haveprev || !havenext {
		return 0, false
	}
	if !now.Before(next.Start) {
		return 0, false
	}
	return uint64(next.Start.Unix() - prev.Start.Unix()), true
}
