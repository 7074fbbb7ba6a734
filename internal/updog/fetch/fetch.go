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

// Package fetch pulls a single named artifact to a destination path,
// preferring a copy out of a mounted root image over a repository
// download, and transparently decompressing LZ4 targets.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coreos/pkg/capnslog"
	"github.com/pierrec/lz4/v4"

	"github.com/coreos/updog/internal/updog/repository"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "fetch")

// ImageMigrationPrefix is the path, relative to a mounted root image,
// under which migration artifacts are also shipped inside the image
// itself (so a migration already present on disk needn't be
// redownloaded).
const ImageMigrationPrefix = "sys-root/usr/share/factory/var/lib/thar/datastore/migrations"

// Artifact fetches target into destPath. If mountPath is non-empty, it
// first tries to copy the artifact out of the mounted root image at
// {mountPath}/{arch}-thar-linux-gnu/{ImageMigrationPrefix}/{target}; a
// missing or non-regular file there is not an error, it just falls
// through to a repository download. lz4Compressed requests streaming
// decompression of the downloaded bytes (used for the root partition
// image).
func Artifact(ctx context.Context, repo repository.Target, mountPath, arch, target, destPath string, lz4Compressed bool) error {
	if mountPath != "" {
		src := filepath.Join(mountPath, arch+"-thar-linux-gnu", ImageMigrationPrefix, target)
		if copyFromImage(src, destPath) {
			return nil
		}
		plog.Infof("%s not found in mounted image, falling back to download", target)
	}

	return download(ctx, repo, target, destPath, lz4Compressed)
}

func copyFromImage(src, dest string) bool {
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	in, err := os.Open(src)
	if err != nil {
		plog.Warningf("opening %s for migration copy: %v", src, err)
		return false
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		plog.Warningf("opening %s for migration copy: %v", dest, err)
		return false
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		plog.Warningf("copying %s to %s: %v", src, dest, err)
		return false
	}
	return true
}

func download(ctx context.Context, repo repository.Target, target, destPath string, lz4Compressed bool) error {
	stream, err := repo.ReadTarget(ctx, target)
	if err != nil {
		return fmt.Errorf("fetching target %q: %w", target, err)
	}
	defer stream.Close()

	var r io.Reader = stream
	if lz4Compressed {
		r = lz4.NewReader(stream)
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}
