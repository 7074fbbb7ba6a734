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

// Package manifest holds the typed view of the signed update manifest:
// candidate updates, the per-update wave rollout schedule, the migration
// graph between data-store schema versions, and the release-to-schema
// version map.
package manifest

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "manifest")

// Images names the three repository targets that make up one release.
type Images struct {
	Boot string `json:"boot"`
	Root string `json:"root"`
	Hash string `json:"hash"`
}

// Update is one candidate release in the manifest.
type Update struct {
	Flavor     string         `json:"flavor"`
	Arch       string         `json:"arch"`
	Version    semver.Version `json:"version"`
	MaxVersion semver.Version `json:"max_version"`
	Waves      Waves          `json:"waves"`
	Images     Images         `json:"images"`
}

// Manifest is the full, read-only signed update manifest consumed once
// per invocation.
type Manifest struct {
	Updates           []Update          `json:"updates"`
	Migrations        Migrations        `json:"migrations"`
	DatastoreVersions DatastoreVersions `json:"datastore_versions"`
}

// DatastoreVersionFor resolves the data-store version for a release,
// returning an error (not ok=false) since every planned release must be
// present in the map by manifest invariant.
func (m *Manifest) DatastoreVersionFor(v semver.Version) (DVersion, error) {
	dv, ok := m.DatastoreVersions.Get(v)
	if !ok {
		return DVersion{}, fmt.Errorf("no data-store version mapping for release %s", v.String())
	}
	return dv, nil
}
