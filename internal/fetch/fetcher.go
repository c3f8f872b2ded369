// Package fetch retrieves a remote CSV resource and persists it as a
// local artifact with a checksum computed on write.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// NetworkError reports an unreachable host or a non-success HTTP status.
// Fetch failures are fatal to a run and are never retried here.
type NetworkError struct {
	URL    string
	Status int // 0 when the request never reached the server
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Artifact is the locally persisted copy of a fetched resource.
// Immutable after creation; a re-download supersedes it via rename.
type Artifact struct {
	URL      string
	Path     string
	Size     int64
	Checksum string // hex-encoded sha256
}

// Fetcher downloads resources over HTTP.
type Fetcher struct {
	client *http.Client
}

func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 10 * time.Minute}}
}

// NewWithClient allows injecting a custom HTTP client, mainly for tests.
func NewWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads url and writes it to destPath. The body is streamed to
// destPath + ".tmp" and renamed on success, so a failed fetch leaves no
// artifact behind. Any prior artifact at destPath is overwritten.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: url, Status: resp.StatusCode}
	}

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating artifact directory: %w", err)
		}
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating artifact file: %w", err)
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hash), resp.Body)
	if err != nil {
		out.Close()
		os.Remove(tmpPath)
		return nil, &NetworkError{URL: url, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing artifact file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("renaming artifact file: %w", err)
	}

	art := &Artifact{
		URL:      url,
		Path:     destPath,
		Size:     size,
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}
	logrus.Infof("fetched %s (%d bytes, sha256 %s…)", url, size, art.Checksum[:12])
	return art, nil
}

// ChecksumFile computes the sha256 of an existing artifact, used to match
// checkpoints against the file actually on disk.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
