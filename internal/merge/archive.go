// Package merge holds the pieces shared by the two merge engines: the
// graph-loading merge (merge/graph) and the tabular concat merge
// (merge/catmerge).
package merge

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteTarGz bundles files, by base name, into a gzip-compressed tarball at path.
func WriteTarGz(path string, files []string) (err error) {
	out, err := os.Create(path) //nolint:gosec // output path is chosen by the caller
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, file := range files {
		if err := addFile(tw, file); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, file string) error {
	f, err := os.Open(file) //nolint:gosec // files are merge outputs
	if err != nil {
		return fmt.Errorf("failed to open %s for archiving: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", file, err)
	}
	hdr.Name = filepath.Base(file)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", file, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", file, err)
	}
	return nil
}
