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

// Package orchestrator sequences the update state machine: select ->
// gate on wave readiness -> stage the root image -> plan and fetch
// migrations -> jitter -> write the inactive partition set -> flip boot
// flags. It owns every temporary resource (download, loop device, mount)
// and releases them on every exit path.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/updog/internal/updog/bootslot"
	"github.com/coreos/updog/internal/updog/config"
	"github.com/coreos/updog/internal/updog/fetch"
	"github.com/coreos/updog/internal/updog/manifest"
	"github.com/coreos/updog/internal/updog/migration"
	"github.com/coreos/updog/internal/updog/osrelease"
	"github.com/coreos/updog/internal/updog/repository"
	"github.com/coreos/updog/internal/updog/selection"
	"github.com/coreos/updog/internal/updog/stage"
	"github.com/coreos/updog/internal/updog/wave"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "orchestrator")

// ErrNoUpdate is returned by CheckUpdate when no update applies to this
// host.
var ErrNoUpdate = errors.New("no update available")

// Orchestrator holds everything one invocation needs: the already-loaded
// manifest, config and running identity, the repository boundary, and
// the fixed filesystem locations it reads and writes.
type Orchestrator struct {
	Repo     repository.Target
	Manifest *manifest.Manifest
	Config   *config.Config
	Identity osrelease.Identity
	Arch     string

	MigrationDir       string
	BootSlotPath       string
	BootSlotPartitions map[string]bootslot.PartitionSet

	// Now and Sleep are overridable for tests; they default to
	// time.Now and time.Sleep.
	Now   func() time.Time
	Sleep func(time.Duration)
	Rand  *rand.Rand
}

// New returns an Orchestrator with its time/random hooks defaulted.
func New(repo repository.Target, m *manifest.Manifest, cfg *config.Config, identity osrelease.Identity, arch, migrationDir, bootSlotPath string, partitions map[string]bootslot.PartitionSet) *Orchestrator {
	return &Orchestrator{
		Repo:               repo,
		Manifest:           m,
		Config:             cfg,
		Identity:           identity,
		Arch:               arch,
		MigrationDir:       migrationDir,
		BootSlotPath:       bootSlotPath,
		BootSlotPartitions: partitions,
		Now:                time.Now,
		Sleep:              time.Sleep,
		Rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select runs the selection policy against this host's config, manifest
// and running identity.
func (o *Orchestrator) Select(force *semver.Version) *manifest.Update {
	return selection.Required(o.Manifest, o.Identity.Version, o.Identity.Flavor, o.Arch, force)
}

// CheckUpdate implements the check-update subcommand: it reports the
// chosen update, or ErrNoUpdate if none applies.
func (o *Orchestrator) CheckUpdate(w io.Writer, jsonOutput bool, force *semver.Version) error {
	u := o.Select(force)
	if u == nil {
		return ErrNoUpdate
	}

	if jsonOutput {
		b, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("serializing update: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	dv, err := o.Manifest.DatastoreVersionFor(u.Version)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s-%s (%s)\n", u.Flavor, u.Version.String(), dv.String())
	return err
}

// CommitFlags implements the update-flags subcommand: it promotes the
// inactive slot to bootable without touching any partition contents.
func (o *Orchestrator) CommitFlags() error {
	state, err := bootslot.Load(o.BootSlotPath, o.BootSlotPartitions)
	if err != nil {
		return err
	}
	state.UpgradeToInactive()
	return state.Write()
}

// Apply runs the full update pipeline for the update/update-image
// subcommands. commitFlags is false for update-image. force skips the
// ordering policy; ignoreWave skips wave gating and jitter (but the wave
// scheduler is still consulted, and a hard failure there - no seed, no
// wave at all - still aborts the command).
func (o *Orchestrator) Apply(ctx context.Context, commitFlags bool, force *semver.Version, ignoreWave bool) error {
	u := o.Select(force)
	if u == nil {
		plog.Infof("no update required")
		return nil
	}

	ready, err := wave.Ready(u, o.Config.Seed, o.Now())
	if err != nil {
		return err
	}
	if !ready && !ignoreWave {
		plog.Noticef("update available in later wave")
		return nil
	}

	plog.Infof("starting update to %s", u.Version)

	staged, stageErr := stage.Stage(ctx, o.Repo, u.Images.Root)
	if stageErr != nil {
		plog.Infof("failed to mount image, migrations will be downloaded (%v)", stageErr)
		staged = nil
	}

	if err := o.fetchMigrations(ctx, u, staged); err != nil {
		if staged != nil {
			staged.Teardown()
		}
		return err
	}

	if staged != nil {
		staged.Unmount()
	}

	if !ignoreWave {
		if seconds, ok := wave.Jitter(u, o.Config.Seed, o.Now()); ok && seconds > 1 {
			d := time.Duration(1+o.Rand.Int63n(int64(seconds-1))) * time.Second
			plog.Infof("waiting %s till update", d)
			o.Sleep(d)
		}
	} else {
		plog.Infof("** updating immediately **")
	}

	bootState, err := bootslot.Load(o.BootSlotPath, o.BootSlotPartitions)
	if err != nil {
		if staged != nil {
			staged.RemoveTemp()
		}
		return fmt.Errorf("loading boot-slot state: %w", err)
	}

	bootState.ClearInactive()
	if err := bootState.Write(); err != nil {
		if staged != nil {
			staged.RemoveTemp()
		}
		return fmt.Errorf("clearing inactive boot slot: %w", err)
	}

	inactive := bootState.InactiveSet()

	if err := o.writeRoot(ctx, u, staged, inactive.Root); err != nil {
		if staged != nil {
			staged.RemoveTemp()
		}
		return err
	}
	if staged != nil {
		staged.RemoveTemp()
	}

	if err := fetch.Artifact(ctx, o.Repo, "", o.Arch, u.Images.Boot, inactive.Boot, false); err != nil {
		return fmt.Errorf("writing boot partition: %w", err)
	}
	if err := fetch.Artifact(ctx, o.Repo, "", o.Arch, u.Images.Hash, inactive.Hash, false); err != nil {
		return fmt.Errorf("writing hash partition: %w", err)
	}

	if commitFlags {
		bootState.UpgradeToInactive()
		if err := bootState.Write(); err != nil {
			return fmt.Errorf("committing boot-slot state: %w", err)
		}
	}

	plog.Infof("update applied: %s-%s", u.Flavor, u.Version)
	return nil
}

func (o *Orchestrator) fetchMigrations(ctx context.Context, u *manifest.Update, staged *stage.Image) error {
	from, err := o.Manifest.DatastoreVersionFor(o.Identity.Version)
	if err != nil {
		return err
	}
	to, err := o.Manifest.DatastoreVersionFor(u.Version)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}

	names, err := migration.Targets(from, to, o.Manifest)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(o.MigrationDir, 0o755); err != nil {
		return fmt.Errorf("creating migration directory %s: %w", o.MigrationDir, err)
	}

	mountPath := ""
	if staged != nil {
		mountPath = staged.MountPath
	}

	for _, name := range names {
		dest := filepath.Join(o.MigrationDir, name)
		if err := fetch.Artifact(ctx, o.Repo, mountPath, o.Arch, name, dest, false); err != nil {
			return fmt.Errorf("fetching migration %q: %w", name, err)
		}
	}
	return nil
}

// writeRoot prefers copying the already-staged temp root image over a
// fresh download; a copy failure falls back to downloading.
func (o *Orchestrator) writeRoot(ctx context.Context, u *manifest.Update, staged *stage.Image, dest string) error {
	if staged != nil {
		if err := copyFile(staged.TempPath, dest); err == nil {
			return nil
		} else {
			plog.Infof("root copy failed, redownloading (%v)", err)
		}
	}
	return fetch.Artifact(ctx, o.Repo, "", o.Arch, u.Images.Root, dest, true)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
