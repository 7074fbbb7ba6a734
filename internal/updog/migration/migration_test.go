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

package migration

import (
	"reflect"
	"testing"

	"github.com/coreos/updog/internal/updog/manifest"
)

func dv(s string) manifest.DVersion {
	v, err := manifest.ParseDVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func edge(from, to string) manifest.MigrationEdge {
	return manifest.MigrationEdge{From: dv(from), To: dv(to)}
}

// TestTargetsPrefersShortcutEdge is scenario 5: from the set
// {(1.0,1.1):[a,b], (1.0,1.2):[c], (1.2,1.3):[d], (1.1,1.3):[shortcut]},
// walking 1.0 -> 1.3 must prefer the greatest "to" reachable from each
// vertex at or before the target, i.e. 1.0->1.2 (c) then 1.2->1.3 (d).
func TestTargetsPrefersShortcutEdge(t *testing.T) {
	m := &manifest.Manifest{Migrations: manifest.Migrations{
		edge("1.0", "1.1"): {"a", "b"},
		edge("1.0", "1.2"): {"c"},
		edge("1.2", "1.3"): {"d"},
		edge("1.1", "1.3"): {"shortcut"},
	}}

	got, err := Targets(dv("1.0"), dv("1.3"), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTargetsBidirectional(t *testing.T) {
	m := &manifest.Manifest{Migrations: manifest.Migrations{
		edge("1.0", "1.1"): {"a"},
		edge("1.1", "1.2"): {"b"},
	}}

	up, err := Targets(dv("1.0"), dv("1.2"), m)
	if err != nil {
		t.Fatalf("upgrade direction: %v", err)
	}
	down, err := Targets(dv("1.2"), dv("1.0"), m)
	if err != nil {
		t.Fatalf("downgrade direction: %v", err)
	}
	if !reflect.DeepEqual(up, down) {
		t.Fatalf("expected the same artifact list regardless of direction, got %v vs %v", up, down)
	}
}

func TestTargetsSameVersionIsEmpty(t *testing.T) {
	m := &manifest.Manifest{Migrations: manifest.Migrations{}}
	got, err := Targets(dv("1.0"), dv("1.0"), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no migrations between equal versions, got %v", got)
	}
}

func TestTargetsMissingEdgeIsError(t *testing.T) {
	m := &manifest.Manifest{Migrations: manifest.Migrations{
		edge("1.0", "1.1"): {"a"},
	}}
	if _, err := Targets(dv("1.0"), dv("2.0"), m); err == nil {
		t.Fatal("expected an error for an unreachable target version")
	}
}
