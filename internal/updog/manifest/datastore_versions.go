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
	"sort"

	"github.com/coreos/go-semver/semver"
)

// DatastoreVersions resolves a release SemVer to the DVersion of the
// persistent data-store schema it ships with. It decodes from (and
// re-encodes to) a JSON object of "<semver>": "<dversion>" pairs. The
// entries are held in an unordered map; re-marshaling emits the keys in
// lexical string order (so "1.10.0" precedes "1.9.0"), not SemVer order.
type DatastoreVersions struct {
	entries map[string]DVersion
}

// Get resolves a release version to its data-store version.
func (d *DatastoreVersions) Get(v semver.Version) (DVersion, bool) {
	if d == nil || d.entries == nil {
		return DVersion{}, false
	}
	dv, ok := d.entries[v.String()]
	return dv, ok
}

func (d *DatastoreVersions) UnmarshalJSON(b []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	entries := make(map[string]DVersion, len(raw))
	for k, v := range raw {
		sv, err := semver.NewVersion(k)
		if err != nil {
			return err
		}
		dv, err := ParseDVersion(v)
		if err != nil {
			return err
		}
		entries[sv.String()] = dv
	}
	d.entries = entries
	return nil
}

func (d DatastoreVersions) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	raw := make(map[string]string, len(d.entries))
	for k, v := range d.entries {
		raw[k] = v.String()
	}
	return json.Marshal(raw)
}
