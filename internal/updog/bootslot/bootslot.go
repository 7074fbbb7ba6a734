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

// Package bootslot is the boot-slot boundary: it reads and writes the
// A/B partition-selection state the firmware consults at boot. The core
// orchestrator only relies on the two-phase sequence ClearInactive+Write
// then UpgradeToInactive+Write; the real distribution backs this with
// GPT partition-entry attributes (priority, tries-remaining, successful)
// rather than a JSON file, but that attribute writer is an external
// collaborator. This type stands in for it with an equivalent on-disk
// state file, which is what the core's tests exercise against.
package bootslot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/pkg/capnslog"
	"github.com/google/uuid"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "bootslot")

// PartitionSet is the boot/root/hash device triple for one A/B slot.
type PartitionSet struct {
	Boot string
	Root string
	Hash string
}

// SlotAttrs mirrors the GPT priority/tries/successful attribute trio for
// one slot.
type SlotAttrs struct {
	Priority   int  `json:"priority"`
	Tries      int  `json:"tries"`
	Successful bool `json:"successful"`
}

// State is the boot-slot boundary the orchestrator drives.
type State interface {
	ClearInactive()
	InactiveSet() PartitionSet
	UpgradeToInactive()
	Write() error
}

// onDiskState is the persisted shape of Store.
type onDiskState struct {
	Active string               `json:"active"`
	Slots  map[string]SlotAttrs `json:"slots"`
	LastTx string               `json:"last_tx"`
}

// Store is the concrete State implementation. It tracks which of the
// two fixed slots, "A" and "B", is active, and the two slots' GPT-style
// attributes.
type Store struct {
	path       string
	partitions map[string]PartitionSet

	state onDiskState
}

// DefaultPartitions returns the fixed boot/root/hash device paths for
// each A/B slot, the way the real boot-slot writer has them compiled in.
func DefaultPartitions() map[string]PartitionSet {
	return map[string]PartitionSet{
		"A": {Boot: "/dev/disk/by-partlabel/BOOT-A", Root: "/dev/disk/by-partlabel/ROOT-A", Hash: "/dev/disk/by-partlabel/HASH-A"},
		"B": {Boot: "/dev/disk/by-partlabel/BOOT-B", Root: "/dev/disk/by-partlabel/ROOT-B", Hash: "/dev/disk/by-partlabel/HASH-B"},
	}
}

// Load reads the boot-slot state file at path, or initializes a fresh
// one (slot A active) if it doesn't exist yet.
func Load(path string, partitions map[string]PartitionSet) (*Store, error) {
	s := &Store{path: path, partitions: partitions}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.state = onDiskState{
			Active: "A",
			Slots: map[string]SlotAttrs{
				"A": {Priority: 2, Tries: 0, Successful: true},
				"B": {Priority: 1, Tries: 0, Successful: false},
			},
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading boot-slot state %s: %w", path, err)
	}

	if err := json.Unmarshal(b, &s.state); err != nil {
		return nil, fmt.Errorf("parsing boot-slot state %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) inactiveSlot() string {
	if s.state.Active == "A" {
		return "B"
	}
	return "A"
}

// ClearInactive marks the inactive slot as not bootable: zero priority,
// zero tries, not successful. This must be written before any partition
// write begins, so the slot never appears bootable mid-write.
func (s *Store) ClearInactive() {
	inactive := s.inactiveSlot()
	s.state.Slots[inactive] = SlotAttrs{Priority: 0, Tries: 0, Successful: false}
}

// InactiveSet returns the partition device triple for the inactive slot.
func (s *Store) InactiveSet() PartitionSet {
	return s.partitions[s.inactiveSlot()]
}

// UpgradeToInactive promotes the inactive slot to highest priority and
// marks it ready to try, without touching which slot is "active" until
// the firmware boots it and this agent is invoked again afterward.
func (s *Store) UpgradeToInactive() {
	inactive := s.inactiveSlot()
	active := s.state.Active
	s.state.Slots[inactive] = SlotAttrs{Priority: 2, Tries: 1, Successful: false}
	if attrs, ok := s.state.Slots[active]; ok {
		attrs.Priority = 1
		s.state.Slots[active] = attrs
	}
}

// Write persists the state atomically (write-temp + rename) and is never
// best-effort: a failure here aborts the command.
func (s *Store) Write() error {
	s.state.LastTx = uuid.NewString()

	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding boot-slot state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".boot-slot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp boot-slot state: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing boot-slot state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing boot-slot state: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("committing boot-slot state to %s: %w", s.path, err)
	}

	plog.Infof("wrote boot-slot state %s (tx %s)", s.path, s.state.LastTx)
	return nil
}
