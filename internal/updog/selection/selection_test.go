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

package selection

import (
	"testing"

	"github.com/coreos/go-semver/semver"

	"github.com/coreos/updog/internal/updog/manifest"
)

func candidate(flavor, arch, version, maxVersion string) manifest.Update {
	return manifest.Update{
		Flavor:     flavor,
		Arch:       arch,
		Version:    *semver.New(version),
		MaxVersion: *semver.New(maxVersion),
	}
}

func TestRequiredPicksHighestNewerCandidate(t *testing.T) {
	m := &manifest.Manifest{Updates: []manifest.Update{
		candidate("thar", "x86_64", "1.10.0", "1.20.0"),
		candidate("thar", "x86_64", "1.15.0", "1.20.0"),
		candidate("thar", "x86_64", "1.5.0", "1.20.0"), // below running version
	}}

	u := Required(m, *semver.New("1.9.0"), "thar", "x86_64", nil)
	if u == nil {
		t.Fatal("expected an update")
	}
	if u.Version.String() != "1.15.0" {
		t.Fatalf("got %s, want 1.15.0 (the highest candidate newer than the running version)", u.Version)
	}
}

func TestRequiredFiltersFlavorAndArch(t *testing.T) {
	m := &manifest.Manifest{Updates: []manifest.Update{
		candidate("other", "x86_64", "1.20.0", "1.20.0"),
		candidate("thar", "aarch64", "1.20.0", "1.20.0"),
	}}

	u := Required(m, *semver.New("1.0.0"), "thar", "x86_64", nil)
	if u != nil {
		t.Fatalf("expected no match across flavor/arch filter, got %v", u)
	}
}

// TestRequiredRecoversOverCeilingHost is scenario 4: a host past every
// candidate's max_version is above the cap of the newest candidate, so
// the recovery branch steps it back to that candidate.
func TestRequiredRecoversOverCeilingHost(t *testing.T) {
	m := &manifest.Manifest{Updates: []manifest.Update{
		candidate("thar", "x86_64", "1.15.0", "1.20.0"),
		candidate("thar", "x86_64", "1.18.0", "1.20.0"),
	}}

	u := Required(m, *semver.New("1.25.0"), "thar", "x86_64", nil)
	if u == nil {
		t.Fatal("expected the recovery branch to pick a candidate for an over-ceiling host")
	}
	if u.Version.String() != "1.18.0" {
		t.Fatalf("got %s, want 1.18.0 (the newest candidate whose max_version the host exceeds)", u.Version)
	}
}

// TestRequiredForcedVersion is scenario 6.
func TestRequiredForcedVersion(t *testing.T) {
	m := &manifest.Manifest{Updates: []manifest.Update{
		candidate("thar", "x86_64", "1.13.0", "1.20.0"),
		candidate("thar", "x86_64", "1.15.0", "1.20.0"),
	}}

	force := semver.New("1.13.0")
	u := Required(m, *semver.New("1.10.0"), "thar", "x86_64", force)
	if u == nil {
		t.Fatal("expected forced version to match")
	}
	if u.Version.String() != "1.13.0" {
		t.Fatalf("got %s, want 1.13.0", u.Version)
	}
}

func TestRequiredForcedVersionNotFound(t *testing.T) {
	m := &manifest.Manifest{Updates: []manifest.Update{
		candidate("thar", "x86_64", "1.13.0", "1.20.0"),
	}}

	force := semver.New("1.99.0")
	if u := Required(m, *semver.New("1.10.0"), "thar", "x86_64", force); u != nil {
		t.Fatalf("expected no match for unknown forced version, got %v", u)
	}
}

func TestRequiredSkipsSelfInconsistentCandidates(t *testing.T) {
	m := &manifest.Manifest{Updates: []manifest.Update{
		candidate("thar", "x86_64", "1.20.0", "1.10.0"), // version > max_version
	}}

	if u := Required(m, *semver.New("1.0.0"), "thar", "x86_64", nil); u != nil {
		t.Fatalf("expected self-inconsistent candidate to be skipped, got %v", u)
	}
}
