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

package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MaxSeed bounds the per-host wave seed space to [0, MaxSeed).
const MaxSeed uint64 = 2048

// WaveEntry is a single (seed, activation-time) rollout cohort boundary.
type WaveEntry struct {
	Seed  uint64
	Start time.Time
}

// Waves is the ordered set of wave entries for one Update, sorted
// ascending by Seed. It decodes from (and re-encodes to) a JSON array of
// {"start-seed", "start-time"} records, rejecting out-of-range or
// duplicate seeds the way the manifest parser must.
type Waves []WaveEntry

type waveRecord struct {
	StartSeed uint64    `json:"start-seed"`
	StartTime time.Time `json:"start-time"`
}

func (w *Waves) UnmarshalJSON(b []byte) error {
	var records []waveRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return err
	}

	seen := make(map[uint64]struct{}, len(records))
	entries := make(Waves, 0, len(records))
	for _, r := range records {
		if r.StartSeed >= MaxSeed {
			return fmt.Errorf("wave start-seed %d out of range [0, %d)", r.StartSeed, MaxSeed)
		}
		if _, dup := seen[r.StartSeed]; dup {
			return fmt.Errorf("duplicate wave start-seed %d", r.StartSeed)
		}
		seen[r.StartSeed] = struct{}{}
		entries = append(entries, WaveEntry{Seed: r.StartSeed, Start: r.StartTime})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Seed < entries[j].Seed })
	*w = entries
	return nil
}

func (w Waves) MarshalJSON() ([]byte, error) {
	records := make([]waveRecord, 0, len(w))
	for _, e := range w {
		records = append(records, waveRecord{StartSeed: e.Seed, StartTime: e.Start})
	}
	return json.Marshal(records)
}

// LastAtOrBefore returns the entry with the greatest Seed <= seed, if any.
func (w Waves) LastAtOrBefore(seed uint64) (WaveEntry, bool) {
	var best WaveEntry
	found := false
	for _, e := range w {
		if e.Seed <= seed && (!found || e.Seed > best.Seed) {
			best = e
			found = true
		}
	}
	return best, found
}

// FirstAfter returns the entry with the smallest Seed > seed and < MaxSeed, if any.
func (w Waves) FirstAfter(seed uint64) (WaveEntry, bool) {
	var best WaveEntry
	found := false
	for _, e := range w {
		if e.Seed > seed && e.Seed < MaxSeed && (!found || e.Seed < best.Seed) {
			best = e
			found = true
		}
	}
	return best, found
}

// Last returns the entry with the greatest Seed, if any.
func (w Waves) Last() (WaveEntry, bool) {
	var best WaveEntry
	found := false
	for _, e := range w {
		if !found || e.Seed > best.Seed {
			best = e
			found = true
		}
	}
	return best, found
}
