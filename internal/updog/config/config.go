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

// Package config loads the agent's on-disk configuration, lazily minting
// and persisting a per-host wave seed on first run. This loader is
// ambient scaffolding around the core: the core itself only ever
// consumes the resolved Config value.
package config

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/coreos/pkg/capnslog"
	yaml "gopkg.in/yaml.v2"

	"github.com/coreos/updog/internal/updog/manifest"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "config")

// Config is the resolved configuration the core consumes.
type Config struct {
	MetadataBaseURL string  `yaml:"metadata_base_url"`
	TargetBaseURL   string  `yaml:"target_base_url"`
	Seed            *uint64 `yaml:"seed,omitempty"`
}

// Load reads the config file at path, and if it lacks a seed, mints a
// uniformly random one in [0, manifest.MaxSeed) and rewrites the file in
// place (atomically: write-temp + rename) preserving every other field.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Seed == nil {
		seed, err := randomSeed()
		if err != nil {
			return nil, fmt.Errorf("generating host seed: %w", err)
		}
		cfg.Seed = &seed
		plog.Infof("new host seed %d, storing to %s", seed, path)
		if err := save(path, &cfg); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func randomSeed() (uint64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(manifest.MaxSeed)))
	if err != nil {
		return 0, err
	}
	return uint64(n.Int64()), nil
}

func save(path string, cfg *Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".updog-config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("committing config to %s: %w", path, err)
	}
	return nil
}
