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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/coreos/go-semver/semver"
	"github.com/coreos/pkg/capnslog"
	"github.com/spf13/cobra"

	"github.com/coreos/updog/internal/updog/bootslot"
	"github.com/coreos/updog/internal/updog/config"
	"github.com/coreos/updog/internal/updog/manifest"
	"github.com/coreos/updog/internal/updog/orchestrator"
	"github.com/coreos/updog/internal/updog/osrelease"
	"github.com/coreos/updog/internal/updog/repository"
)

const (
	defaultTrustedRoot   = "/usr/share/updog/root.json"
	defaultMetadataCache = "/var/lib/thar/updog/metadata"
	defaultConfigPath    = "/etc/updog.yaml"
	defaultOSRelease     = "/usr/lib/os-release"
	defaultMigrationDir  = "/var/lib/thar/datastore/migrations"
	defaultBootSlotState = "/var/lib/thar/updog/boot-slot-state.json"

	defaultArch = "x86_64"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "main")

var (
	verbosity   int
	imageFlag   string
	nowFlag     bool
	jsonFlag    bool
	metaURLFlag string
	targetURL   string

	root = &cobra.Command{
		Use:   "updog [command]",
		Short: "The Thar update agent",
	}

	cmdCheckUpdate = &cobra.Command{
		Use:   "check-update",
		Short: "Report the update this host would apply, without applying it",
		RunE:  runCheckUpdate,
	}

	cmdUpdate = &cobra.Command{
		Use:   "update",
		Short: "Apply the chosen update, including the boot flag commit",
		RunE:  runUpdate,
	}

	cmdUpdateImage = &cobra.Command{
		Use:   "update-image",
		Short: "Apply the chosen update, but leave the boot flags untouched",
		RunE:  runUpdateImage,
	}

	cmdUpdateFlags = &cobra.Command{
		Use:   "update-flags",
		Short: "Commit the boot flags for an already-written inactive slot",
		RunE:  runUpdateFlags,
	}
)

func init() {
	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")

	for _, cmd := range []*cobra.Command{cmdCheckUpdate, cmdUpdate, cmdUpdateImage} {
		cmd.Flags().StringVarP(&imageFlag, "image", "i", "", "force a specific target version, skipping the ordering policy")
		cmd.Flags().BoolVarP(&nowFlag, "now", "n", false, "ignore wave gating and jitter")
	}
	cmdCheckUpdate.Flags().BoolVarP(&jsonFlag, "json", "j", false, "machine-readable output")

	root.AddCommand(cmdCheckUpdate, cmdUpdate, cmdUpdateImage, cmdUpdateFlags)
}

func main() {
	root.SilenceErrors = true

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Arguments parsed cleanly; a failure from here on is not a usage
		// error, so usage is only printed for bad flags or subcommands.
		cmd.SilenceUsage = true
		startLogging(verbosity)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "updog: %v\n", err)
		os.Exit(1)
	}
}

// startLogging maps the repeated -v count onto capnslog's level scale,
// starting from NOTICE (the default for an unattended agent) and raising
// toward DEBUG.
func startLogging(count int) {
	level := capnslog.NOTICE
	switch {
	case count >= 2:
		level = capnslog.DEBUG
	case count == 1:
		level = capnslog.INFO
	}
	capnslog.SetFormatter(capnslog.NewStringFormatter(os.Stderr))
	capnslog.SetGlobalLogLevel(level)
}

func runCheckUpdate(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return err
	}

	err = o.CheckUpdate(os.Stdout, jsonFlag, forceVersion())
	if errors.Is(err, orchestrator.ErrNoUpdate) {
		fmt.Fprintln(os.Stderr, "no update available")
		return err
	}
	return err
}

func runUpdate(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return err
	}
	return o.Apply(context.Background(), true, forceVersion(), nowFlag)
}

func runUpdateImage(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return err
	}
	return o.Apply(context.Background(), false, forceVersion(), nowFlag)
}

func runUpdateFlags(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return err
	}
	return o.CommitFlags()
}

func forceVersion() *semver.Version {
	if imageFlag == "" {
		return nil
	}
	v, err := semver.NewVersion(imageFlag)
	if err != nil {
		plog.Fatalf("parsing --image %q: %v", imageFlag, err)
	}
	return v
}

// buildOrchestrator loads every ambient input (config, identity, trusted
// repository, manifest) from its fixed location and wires them into one
// Orchestrator, the way the core is driven in production.
func buildOrchestrator() (*orchestrator.Orchestrator, error) {
	cfg, err := config.Load(defaultConfigPath)
	if err != nil {
		return nil, err
	}

	identity, err := osrelease.Read(defaultOSRelease)
	if err != nil {
		return nil, err
	}

	repo, err := repository.Load(defaultTrustedRoot, defaultMetadataCache, cfg.MetadataBaseURL, cfg.TargetBaseURL)
	if err != nil {
		return nil, err
	}

	m, err := loadManifest(context.Background(), repo)
	if err != nil {
		return nil, err
	}

	o := orchestrator.New(repo, m, cfg, identity, defaultArch, defaultMigrationDir, defaultBootSlotState, bootslot.DefaultPartitions())
	return o, nil
}

func loadManifest(ctx context.Context, repo *repository.Client) (*manifest.Manifest, error) {
	stream, err := repo.ReadMetadata(ctx, "manifest.json")
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	defer stream.Close()

	var m manifest.Manifest
	if err := json.NewDecoder(stream).Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}
