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
)

// MigrationEdge keys one transition between two data-store schema
// versions in the migration graph.
type MigrationEdge struct {
	From DVersion
	To   DVersion
}

// Migrations maps a migration edge to the ordered list of artifact names
// that must run for that transition. An empty slice (present key) means
// the transition is schema-compatible and needs no migrator.
type Migrations map[MigrationEdge][]string

type migrationRecord struct {
	From       DVersion `json:"from"`
	To         DVersion `json:"to"`
	Migrations []string `json:"migrations"`
}

func (m *Migrations) UnmarshalJSON(b []byte) error {
	var records []migrationRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return err
	}

	out := make(Migrations, len(records))
	for _, r := range records {
		edge := MigrationEdge{From: r.From, To: r.To}
		if _, dup := out[edge]; dup {
			return fmt.Errorf("duplicate migration edge %s -> %s", r.From, r.To)
		}
		out[edge] = r.Migrations
	}
	*m = out
	return nil
}

func (m Migrations) MarshalJSON() ([]byte, error) {
	records := make([]migrationRecord, 0, len(m))
	for edge, names := range m {
		records = append(records, migrationRecord{From: edge.From, To: edge.To, Migrations: names})
	}
	sort.Slice(records, func(i, j int) bool {
		if c := records[i].From.Compare(records[j].From); c != 0 {
			return c < 0
		}
		return records[i].To.Compare(records[j].To) < 0
	})
	return json.Marshal(records)
}
