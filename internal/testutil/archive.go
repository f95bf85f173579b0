package testutil

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"testing"
)

// TarGzNames returns the entry names of a gzip-compressed tarball in order.
func TarGzNames(t testing.TB, path string) []string {
	t.Helper()

	f, err := os.Open(path) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("failed to open archive %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to read gzip stream %s: %v", path, err)
	}
	defer func() { _ = gz.Close() }()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names
		}
		if err != nil {
			t.Fatalf("failed to read tar entry in %s: %v", path, err)
		}
		names = append(names, hdr.Name)
	}
}
