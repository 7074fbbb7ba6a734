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

// Package migration computes the ordered list of migration artifacts
// needed to carry persistent data-store state from one schema version to
// another, across the manifest's migration graph.
package migration

import (
	"fmt"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/updog/internal/updog/manifest"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "migration")

// Targets walks the migration graph from min(from, to) up to max(from,
// to), greedily preferring the edge whose "to" is the greatest value not
// exceeding the target at each step, and returns the concatenated,
// ordered artifact list. The same list is returned regardless of whether
// from < to or from > to: migration artifacts are bidirectional by
// contract.
func Targets(from, to manifest.DVersion, m *manifest.Manifest) ([]string, error) {
	start := manifest.MinDVersion(from, to)
	target := manifest.MaxDVersion(from, to)

	var out []string
	v := start
	for v != target {
		edge, ok := bestEdge(v, target, m.Migrations)
		if !ok {
			return nil, fmt.Errorf("missing migration (%s -> %s)", v, target)
		}
		out = append(out, m.Migrations[edge]...)
		v = edge.To
	}
	return out, nil
}

// bestEdge finds the edge leaving v whose To is the greatest value <=
// target.
func bestEdge(v, target manifest.DVersion, migrations manifest.Migrations) (manifest.MigrationEdge, bool) {
	best := manifest.MigrationEdge{}
	found := false
	for edge := range migrations {
		if edge.From != v {
			continue
		}
		if edge.To.Compare(target) > 0 {
			continue
		}
		if !found || edge.To.Compare(best.To) > 0 {
			best = edge
			found = true
		}
	}
	return best, found
}
