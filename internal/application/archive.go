package application

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const imagingRoot = "PPMI"

var errUnsafeEntry = errors.New("archive entry escapes destination")

// extractZip unpacks archive into dest and returns the extracted file paths.
func extractZip(archive, dest string) ([]string, error) {
	reader, err := zip.OpenReader(archive)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = reader.Close()
		return nil, fmt.Errorf("%w: %s", errUnsafeEntry, filepath.Base(archive))
	}
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", filepath.Base(archive), err)
	}
	defer func() { _ = reader.Close() }()

	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, fmt.Errorf("resolve extract dir: %w", err)
	}

	paths := make([]string, 0, len(reader.File))
	for _, entry := range reader.File {
		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return paths, fmt.Errorf("%w: %s", errUnsafeEntry, entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, downloadDirMode); err != nil {
				return paths, fmt.Errorf("create %s: %w", entry.Name, err)
			}
			continue
		}

		if err := extractEntry(entry, target); err != nil {
			return paths, err
		}
		paths = append(paths, target)
	}

	return paths, nil
}

// checkArchive fails when path has no readable zip directory, as with an
// HTML error page served under an archive name.
func checkArchive(path string) error {
	reader, err := zip.OpenReader(path)
	if reader != nil {
		_ = reader.Close()
	}
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}
	return nil
}

func extractEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), downloadDirMode); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(entry.Name), err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", entry.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", entry.Name, err)
	}
	return nil
}

// archivedSubjects lists the subject IDs an imaging archive contains, read
// from entry paths of the form PPMI/<subject>/...
func archivedSubjects(archive string) (map[int]struct{}, error) {
	reader, err := zip.OpenReader(archive)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = reader.Close()
		return nil, fmt.Errorf("%w: %s", errUnsafeEntry, filepath.Base(archive))
	}
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", filepath.Base(archive), err)
	}
	defer func() { _ = reader.Close() }()

	subjects := make(map[int]struct{})
	for _, entry := range reader.File {
		parts := strings.Split(strings.TrimPrefix(entry.Name, "/"), "/")
		if len(parts) < 2 || parts[0] != imagingRoot {
			continue
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil || id <= 0 {
			continue
		}
		subjects[id] = struct{}{}
	}
	return subjects, nil
}
