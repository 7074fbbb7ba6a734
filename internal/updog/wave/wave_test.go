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

package wave

import (
	"errors"
	"testing"
	"time"

	"github.com/coreos/updog/internal/updog/manifest"
)

func seedOf(v uint64) *uint64 { return &v }

func entry(seed uint64, start time.Time) manifest.WaveEntry {
	return manifest.WaveEntry{Seed: seed, Start: start}
}

// TestReadyWaveNotYetOpen is scenario 1.
func TestReadyWaveNotYetOpen(t *testing.T) {
	now := time.Now()
	u := &manifest.Update{Waves: manifest.Waves{entry(1024, now.Add(time.Hour))}}

	ready, err := Ready(u, seedOf(123), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ready {
		t.Fatal("expected update not ready")
	}
}

// TestReadyEarlyWaveAlreadyOpen is scenario 2.
func TestReadyEarlyWaveAlreadyOpen(t *testing.T) {
	now := time.Now()
	u := &manifest.Update{Waves: manifest.Waves{
		entry(0, now.Add(-time.Hour)),
		entry(1024, now.Add(time.Hour)),
	}}

	ready, err := Ready(u, seedOf(123), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ready {
		t.Fatal("expected update ready")
	}
}

// TestReadyAllWavesPassed is scenario 3's wave list with seed 700 in
// place of 512: the seed lands at or above the highest wave key, so
// LastAtOrBefore finds that wave directly and it has already started.
func TestReadyAllWavesPassed(t *testing.T) {
	now := time.Now()
	u := &manifest.Update{Waves: manifest.Waves{
		entry(0, now.Add(-3*time.Hour)),
		entry(256, now.Add(-2*time.Hour)),
		entry(512, now.Add(-time.Hour)),
	}}

	ready, err := Ready(u, seedOf(700), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ready {
		t.Fatal("expected update ready (rollout complete)")
	}
}

// TestReadyFallsBackToLastWaveWhenSeedBelowLowestKey covers the manifest
// published without a seed-0 entry: a seed below the lowest wave key has no
// LastAtOrBefore match at all, so Ready falls back to the last wave in the
// list.
func TestReadyFallsBackToLastWaveWhenSeedBelowLowestKey(t *testing.T) {
	now := time.Now()
	u := &manifest.Update{Waves: manifest.Waves{
		entry(256, now.Add(-2*time.Hour)),
		entry(512, now.Add(-time.Hour)),
	}}

	ready, err := Ready(u, seedOf(100), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ready {
		t.Fatal("expected update ready via the last-wave fallback")
	}
}

func TestReadyNoSeedIsError(t *testing.T) {
	u := &manifest.Update{Waves: manifest.Waves{entry(0, time.Now())}}
	if _, err := Ready(u, nil, time.Now()); !errors.Is(err, ErrSeedMissing) {
		t.Fatalf("expected ErrSeedMissing, got %v", err)
	}
}

func TestReadyNoWaveAtAllIsError(t *testing.T) {
	u := &manifest.Update{}
	if _, err := Ready(u, seedOf(10), time.Now()); !errors.Is(err, ErrNoWave) {
		t.Fatalf("expected ErrNoWave, got %v", err)
	}
}

func TestJitterWindowBetweenWaves(t *testing.T) {
	now := time.Now()
	prevStart := now.Add(-time.Hour)
	nextStart := now.Add(time.Hour)
	u := &manifest.Update{Waves: manifest.Waves{
		entry(0, prevStart),
		entry(1024, nextStart),
	}}

	seconds, ok := Jitter(u, seedOf(512), now)
	if !ok {
		t.Fatal("expected a jitter window")
	}
	want := uint64(nextStart.Unix() - prevStart.Unix())
	if seconds != want {
		t.Fatalf("got %d seconds, want %d", seconds, want)
	}
}

func TestJitterNoWindowOnceNextWaveOpen(t *testing.T) {
	now := time.Now()
	u := &manifest.Update{Waves: manifest.Waves{
		entry(0, now.Add(-2*time.Hour)),
		entry(1024, now.Add(-time.Hour)),
	}}

	if _, ok := Jitter(u, seedOf(512), now); ok {
		t.Fatal("expected no jitter window once the next wave has opened")
	}
}

func TestJitterNoSeedNoWindow(t *testing.T) {
	u := &manifest.Update{Waves: manifest.Waves{entry(0, time.Now())}}
	if _, ok := Jitter(u, nil, time.Now()); ok {
		t.Fatal("expected no jitter window without a seed")
	}
}
