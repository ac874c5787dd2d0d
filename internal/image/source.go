// Package image handles disk image acquisition for VM provisioning.
//
// An image reference is either a local file path, used as-is, or an
// http(s) URL downloaded into a local cache directory. Downloads are
// written to a temp file and renamed into place so an interrupted
// download never leaves a truncated image in the cache.
package image

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultCacheDir is where downloaded images land unless overridden.
const DefaultCacheDir = "/var/lib/vz/images/cache"

// Resolver resolves image references to local file paths.
type Resolver struct {
	// CacheDir is the download cache directory.
	CacheDir string

	// Refresh forces a re-download even when a cached copy exists.
	Refresh bool

	// Client is the HTTP client for downloads. Defaults to
	// http.DefaultClient.
	Client *http.Client
}

// NewResolver returns a Resolver using the default cache directory.
func NewResolver() *Resolver {
	return &Resolver{CacheDir: DefaultCacheDir}
}

// Resolve turns an image reference into a local file path, downloading
// remote references into the cache directory first.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return r.download(ctx, ref)
	}

	info, err := os.Stat(ref)
	if err != nil {
		return "", fmt.Errorf("image file %s: %w", ref, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("image %s is not a regular file", ref)
	}
	return ref, nil
}

// download fetches a remote image into the cache directory and returns
// the cached path. An existing cached file is reused unless Refresh is
// set.
func (r *Resolver) download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image URL %q: %w", rawURL, err)
	}

	filename := path.Base(u.Path)
	if filename == "" || filename == "." || filename == "/" {
		return "", fmt.Errorf("cannot derive a filename from URL %q", rawURL)
	}

	if err := os.MkdirAll(r.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", r.CacheDir, err)
	}

	target := filepath.Join(r.CacheDir, filename)
	if !r.Refresh {
		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			log.Printf("Using cached image %s (%d bytes)", target, info.Size())
			return target, nil
		}
	}

	log.Printf("Downloading %s to %s...", rawURL, target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close download body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: server returned %s for %s", resp.Status, rawURL)
	}

	// Write to a temp file in the same directory so the final rename is
	// atomic on the same filesystem.
	tmp, err := os.CreateTemp(r.CacheDir, filename+".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-op when the rename succeeded
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Printf("Warning: failed to remove partial download %s: %v", tmpPath, removeErr)
		}
	}()

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("download interrupted after %d bytes: %w", written, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to finish writing %s: %w", tmpPath, err)
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		return "", fmt.Errorf("incomplete download: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("failed to move download into cache: %w", err)
	}

	log.Printf("Downloaded %d bytes", written)
	return target, nil
}

// Format returns the qm importdisk --format value for an image path, or
// an empty string when qm should autodetect (compressed images).
func Format(imagePath string) string {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".qcow2":
		return "qcow2"
	case ".raw", ".img":
		return "raw"
	case ".vmdk":
		return "vmdk"
	default:
		return ""
	}
}
