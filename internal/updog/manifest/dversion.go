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
	"strconv"
	"strings"
)

// DVersion is the two-component major.minor version of the persistent
// data-store schema. It advances independently of the release SemVer.
type DVersion struct {
	Major int64
	Minor int64
}

// ParseDVersion parses a "major.minor" string into a DVersion.
func ParseDVersion(s string) (DVersion, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 2 {
		return DVersion{}, fmt.Errorf("invalid data-store version %q: want major.minor", s)
	}
	major, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return DVersion{}, fmt.Errorf("invalid data-store version %q: %w", s, err)
	}
	minor, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return DVersion{}, fmt.Errorf("invalid data-store version %q: %w", s, err)
	}
	return DVersion{Major: major, Minor: minor}, nil
}

func (v DVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1 if v is less than, equal to, or greater than o.
func (v DVersion) Compare(o DVersion) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor != o.Minor:
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (v DVersion) LessThan(o DVersion) bool { return v.Compare(o) < 0 }
func (v DVersion) Equal(o DVersion) bool    { return v.Compare(o) == 0 }

// MinDVersion returns the lesser of a and b.
func MinDVersion(a, b DVersion) DVersion {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

// MaxDVersion returns the greater of a and b.
func MaxDVersion(a, b DVersion) DVersion {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

func (v DVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *DVersion) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
