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

package config

import (
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v2"

	"github.com/coreos/updog/internal/updog/manifest"
)

func TestLoadMintsAndPersistsSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "updog.yaml")
	content := "metadata_base_url: https://example.test/metadata\ntarget_base_url: https://example.test/targets\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Seed == nil {
		t.Fatal("expected a minted seed")
	}
	if *cfg.Seed >= manifest.MaxSeed {
		t.Fatalf("seed %d out of range [0, %d)", *cfg.Seed, manifest.MaxSeed)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading persisted config: %v", err)
	}
	var onDisk Config
	if err := yaml.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("parsing persisted config: %v", err)
	}
	if onDisk.Seed == nil || *onDisk.Seed != *cfg.Seed {
		t.Fatalf("persisted seed %v does not match minted seed %v", onDisk.Seed, cfg.Seed)
	}
	if onDisk.MetadataBaseURL != cfg.MetadataBaseURL {
		t.Fatalf("persisting the seed lost other fields: %+v", onDisk)
	}
}

func TestLoadPreservesExistingSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "updog.yaml")
	content := "metadata_base_url: https://example.test/metadata\ntarget_base_url: https://example.test/targets\nseed: 42\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Seed == nil || *cfg.Seed != 42 {
		t.Fatalf("expected existing seed 42 to be preserved, got %v", cfg.Seed)
	}
}
