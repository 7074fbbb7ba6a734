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

// Package stage loop-mounts a downloaded root image so the orchestrator
// can look inside it for migration artifacts before committing the
// update. Mounting is strictly best-effort: any failure here downgrades
// the caller to download-only mode, it never aborts the update.
package stage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/coreos/pkg/capnslog"
	"github.com/pierrec/lz4/v4"

	"github.com/coreos/updog/internal/updog/repository"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "stage")

// MountPath is the fixed location the staged root image is mounted at.
const MountPath = "/var/lib/thar/updog/thar-be-updates"

// Image is a staged, loop-mounted root image. Every field is owned by
// the caller and must be released on every exit path, either with
// Teardown or with Unmount followed later by RemoveTemp.
type Image struct {
	MountPath string
	TempPath  string

	loopDev string
}

// Stage downloads rootTarget from repo into a temporary file, attaches it
// to a loop device, and read-only/noexec mounts it at MountPath. On any
// failure it cleans up whatever it already acquired and returns an error;
// the caller should treat that as "no mount available" and continue in
// download-only mode.
func Stage(ctx context.Context, repo repository.Target, rootTarget string) (*Image, error) {
	tmp, err := os.CreateTemp("", "updog-root-*.img")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := downloadLZ4(ctx, repo, rootTarget, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	tmp.Close()

	loopDev, err := attachLoop(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.MkdirAll(MountPath, 0o755); err != nil {
		detachLoop(loopDev)
		os.Remove(tmpPath)
		return nil, fmt.Errorf("creating mount point %s: %w", MountPath, err)
	}

	if err := exec.Command("mount", "-o", "ro,noexec", loopDev, MountPath).Run(); err != nil {
		detachLoop(loopDev)
		os.Remove(tmpPath)
		return nil, fmt.Errorf("mounting %s at %s: %w", loopDev, MountPath, err)
	}

	return &Image{MountPath: MountPath, TempPath: tmpPath, loopDev: loopDev}, nil
}

// Unmount detaches the mount and the loop device, warn-only, and leaves
// the backing temp file in place: the orchestrator still wants it around
// to satisfy the root partition write without a redundant download.
func (img *Image) Unmount() {
	if img == nil {
		return
	}
	if out, err := exec.Command("umount", img.MountPath).CombinedOutput(); err != nil {
		plog.Warningf("unmounting %s: %v (%s)", img.MountPath, err, strings.TrimSpace(string(out)))
	}
	detachLoop(img.loopDev)
	img.loopDev = ""
}

// RemoveTemp deletes the backing temp file. Call this once the
// downloaded image has been consumed (or found unusable) by the root
// partition write.
func (img *Image) RemoveTemp() {
	if img == nil {
		return
	}
	if err := os.Remove(img.TempPath); err != nil && !os.IsNotExist(err) {
		plog.Warningf("removing %s: %v", img.TempPath, err)
	}
}

// Teardown unmounts, detaches, and removes the temp file in one call;
// used when the update is abandoned after a successful Stage (for
// example, a migration fetch failed) and nothing downstream needs the
// staged image. A failed Stage cleans up after itself and returns no
// Image.
func (img *Image) Teardown() {
	img.Unmount()
	img.RemoveTemp()
}

func downloadLZ4(ctx context.Context, repo repository.Target, target string, dest *os.File) error {
	stream, err := repo.ReadTarget(ctx, target)
	if err != nil {
		return fmt.Errorf("fetching %q: %w", target, err)
	}
	defer stream.Close()

	if _, err := dest.ReadFrom(lz4.NewReader(stream)); err != nil {
		return fmt.Errorf("decompressing %q: %w", target, err)
	}
	return nil
}

func attachLoop(path string) (string, error) {
	out, err := exec.Command("losetup", "-f", "--show", path).Output()
	if err != nil {
		return "", fmt.Errorf("attaching loop device for %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func detachLoop(loopDev string) {
	if loopDev == "" {
		return
	}
	var stderr bytes.Buffer
	cmd := exec.Command("losetup", "-d", loopDev)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		plog.Warningf("detaching loop device %s: %v (%s)", loopDev, err, strings.TrimSpace(stderr.String()))
	}
}
