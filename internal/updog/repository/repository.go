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

// Package repository is the thin trust/transport boundary the core talks
// to: a named target in, a readable byte stream out. The actual signed
// repository client (root-of-trust verification, timestamp/snapshot/
// targets metadata chains) is an external collaborator; this package only
// adapts its "named target -> stream" surface for the rest of the core,
// plus the bounded-read rule for the trusted root document. It fetches
// signed repository metadata (the manifest) and release targets (images,
// migration artifacts) from separate configured base URLs, the way a real
// TUF-style client keeps its metadata and target mirrors distinct.
package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/updog", "repository")

// MaxRootSize bounds reads of the root-of-trust and timestamp documents.
const MaxRootSize = 1024 * 1024 // 1 MiB

// Target is the repository boundary the rest of the core depends on:
// resolve a named target to a readable byte stream.
type Target interface {
	ReadTarget(ctx context.Context, name string) (io.ReadCloser, error)
}

// Client is the default Target implementation: it trusts a pre-verified
// root document at load time and fetches targets over HTTP from the
// configured target base URL. It does not itself perform TUF-style chain
// verification; that belongs to the external signed-repository client
// this type stands in for.
type Client struct {
	metadataBaseURL string
	targetBaseURL   string
	httpClient      *http.Client
}

// Load bootstraps the repository boundary: it reads (and bounds) the
// trusted root document, ensures the local metadata cache directory
// exists, and returns a Client ready to serve ReadTarget calls.
func Load(trustedRootPath, cacheDir, metadataBaseURL, targetBaseURL string) (*Client, error) {
	f, err := os.Open(trustedRootPath)
	if err != nil {
		return nil, fmt.Errorf("opening trusted root %s: %w", trustedRootPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(io.Discard, io.LimitReader(f, MaxRootSize+1)); err != nil {
		return nil, fmt.Errorf("reading trusted root %s: %w", trustedRootPath, err)
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata cache %s: %w", cacheDir, err)
	}

	plog.Infof("loaded trusted root from %s", trustedRootPath)
	return &Client{
		metadataBaseURL: metadataBaseURL,
		targetBaseURL:   targetBaseURL,
		httpClient:      &http.Client{},
	}, nil
}

// ReadTarget fetches a named release target's byte stream (an image or a
// migration artifact) from the target mirror. Callers own the returned
// ReadCloser and must Close it.
func (c *Client) ReadTarget(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.fetch(ctx, c.targetBaseURL, name)
}

// ReadMetadata fetches a named piece of signed repository metadata (the
// manifest) from the metadata mirror. Callers own the returned
// ReadCloser and must Close it.
func (c *Client) ReadMetadata(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.fetch(ctx, c.metadataBaseURL, name)
}

func (c *Client) fetch(ctx context.Context, baseURL, name string) (io.ReadCloser, error) {
	url := path.Join(baseURL, name)
	if baseURL != "" {
		// path.Join collapses "https://" to "https:/"; rebuild with a
		// plain string join instead whenever a base URL is set.
		url = baseURL + "/" + name
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %q: %w", name, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", name, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("not found: %s", name)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %q: unexpected status %s", name, resp.Status)
	}
	return resp.Body, nil
}
