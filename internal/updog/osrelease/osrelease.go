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

// Package osrelease derives the host's running identity (version,
// flavor) from the OS release file.
package osrelease

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/coreos/go-semver/semver"
)

// Identity is the host's running (version, flavor) pair.
type Identity struct {
	Version semver.Version
	Flavor  string
}

// Read parses VERSION_ID= and VARIANT_ID= out of path, in any order,
// taking the first occurrence of each. Missing either is fatal.
func Read(path string) (Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Identity{}, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	var version *semver.Version
	var flavor string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if version == nil {
			if v, ok := strings.CutPrefix(line, "VERSION_ID="); ok {
				parsed, err := semver.NewVersion(strings.Trim(v, `"`))
				if err != nil {
					return Identity{}, fmt.Errorf("parsing VERSION_ID %q: %w", v, err)
				}
				version = parsed
				continue
			}
		}
		if flavor == "" {
			if v, ok := strings.CutPrefix(line, "VARIANT_ID="); ok {
				flavor = strings.Trim(v, `"`)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Identity{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if version == nil || flavor == "" {
		return Identity{}, fmt.Errorf("%s missing VERSION_ID or VARIANT_ID", path)
	}

	return Identity{Version: *version, Flavor: flavor}, nil
}
