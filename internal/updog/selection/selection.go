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

// Package selection implements the update-selection policy: given the
// manifest and the host's running identity, pick the Update (if any) this
// host should move to.
package selection

import (
	"sort"

	"github.com/coreos/go-semver/semver"
	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/updog/internal/updog/manifest"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "selection")

// Required picks the Update this host should apply, or nil if none
// applies. forceVersion, when non-nil, skips the ordering policy and
// returns the single matching update for that exact version.
func Required(m *manifest.Manifest, version semver.Version, flavor, arch string, forceVersion *semver.Version) *manifest.Update {
	var candidates []manifest.Update
	for _, u := range m.Updates {
		if u.Flavor != flavor || u.Arch != arch {
			continue
		}
		if u.MaxVersion.LessThan(u.Version) {
			// self-inconsistent entry: version must not exceed max_version
			continue
		}
		candidates = append(candidates, u)
	}

	if forceVersion != nil {
		for i := range candidates {
			if candidates[i].Version.Compare(*forceVersion) == 0 {
				return &candidates[i]
			}
		}
		plog.Infof("forced version %s not found among candidates", forceVersion.String())
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[j].Version.LessThan(candidates[i].Version)
	})

	for i := range candidates {
		u := &candidates[i]
		if version.LessThan(u.Version) || u.MaxVersion.LessThan(version) {
			return u
		}
	}
	return nil
}
