package image

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_LocalFile(t *testing.T) {
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "fedora-43.qcow2")
	if err := os.WriteFile(imagePath, []byte("fake image data"), 0644); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}

	r := &Resolver{CacheDir: tmpDir}
	got, err := r.Resolve(context.Background(), imagePath)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got != imagePath {
		t.Errorf("Resolve() = %q, want %q", got, imagePath)
	}
}

func TestResolve_LocalFileMissing(t *testing.T) {
	r := &Resolver{CacheDir: t.TempDir()}
	_, err := r.Resolve(context.Background(), "/nonexistent/image.qcow2")
	if err == nil {
		t.Fatal("Resolve() expected error for missing file")
	}
}

func TestResolve_LocalPathIsDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	r := &Resolver{CacheDir: tmpDir}
	_, err := r.Resolve(context.Background(), tmpDir)
	if err == nil {
		t.Fatal("Resolve() expected error for directory")
	}
}

func TestResolve_Download(t *testing.T) {
	imageData := []byte("pretend this is a qcow2 image")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/debian-13.qcow2" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(imageData)
	}))
	defer server.Close()

	cacheDir := filepath.Join(t.TempDir(), "cache")
	r := &Resolver{CacheDir: cacheDir}

	got, err := r.Resolve(context.Background(), server.URL+"/images/debian-13.qcow2")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	want := filepath.Join(cacheDir, "debian-13.qcow2")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("Failed to read cached image: %v", err)
	}
	if string(data) != string(imageData) {
		t.Errorf("Cached image content mismatch: %q", data)
	}

	// No partial files left behind
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatalf("Failed to read cache dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 file in cache, found %d", len(entries))
	}
}

func TestResolve_DownloadUsesCache(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte("image"))
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	r := &Resolver{CacheDir: cacheDir}
	url := server.URL + "/fedora.qcow2"

	if _, err := r.Resolve(context.Background(), url); err != nil {
		t.Fatalf("first Resolve() error: %v", err)
	}
	if _, err := r.Resolve(context.Background(), url); err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	if requests != 1 {
		t.Errorf("Expected 1 download, server saw %d requests", requests)
	}

	// Refresh forces a re-download
	r.Refresh = true
	if _, err := r.Resolve(context.Background(), url); err != nil {
		t.Fatalf("refresh Resolve() error: %v", err)
	}
	if requests != 2 {
		t.Errorf("Expected refresh to re-download, server saw %d requests", requests)
	}
}

func TestResolve_DownloadServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	r := &Resolver{CacheDir: t.TempDir()}
	_, err := r.Resolve(context.Background(), server.URL+"/fedora.qcow2")
	if err == nil {
		t.Fatal("Resolve() expected error for server failure")
	}
}

func TestResolve_DownloadNoFilename(t *testing.T) {
	r := &Resolver{CacheDir: t.TempDir()}
	_, err := r.Resolve(context.Background(), "https://example.com/")
	if err == nil {
		t.Fatal("Resolve() expected error for URL without filename")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/images/fedora.qcow2", "qcow2"},
		{"/images/disk.raw", "raw"},
		{"/images/disk.img", "raw"},
		{"/images/disk.vmdk", "vmdk"},
		{"/images/disk.qcow2.xz", ""},
		{"/images/disk", ""},
	}

	for _, tt := range tests {
		if got := Format(tt.path); got != tt.want {
			t.Errorf("Format(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
