// Package backup finds and prunes the sibling copies the edit tool writes
// before changing a file.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Infix separates the original file name from the backup timestamp.
const Infix = ".backup."

// Backup is one backup file on disk.
type Backup struct {
	// Path is the backup file.
	Path string

	// Original is the file the backup was taken from.
	Original string

	// Created is decoded from the millisecond suffix.
	Created time.Time

	Size int64
}

// Name returns the backup path for original taken at unix millisecond ms.
func Name(original string, ms int64) string {
	return original + Infix + strconv.FormatInt(ms, 10)
}

// Parse splits a backup path into its original path and creation time.
// ok is false for any other file.
func Parse(path string) (original string, created time.Time, ok bool) {
	i := strings.LastIndex(path, Infix)
	if i <= 0 {
		return "", time.Time{}, false
	}
	suffix := path[i+len(Infix):]
	if suffix == "" || strings.TrimLeft(suffix, "0123456789") != "" {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	original = path[:i]
	if strings.HasSuffix(original, string(filepath.Separator)) {
		return "", time.Time{}, false
	}
	return original, time.UnixMilli(ms), true
}

// List returns the backups under dir, oldest first. Hidden directories
// are not descended into.
func List(dir string) ([]Backup, error) {
	var out []Backup
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		original, created, ok := Parse(path)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, Backup{Path: path, Original: original, Created: created, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", dir, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].Path < out[j].Path
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// Prune removes the backups under dir created before now minus olderThan
// and returns them. A zero olderThan keeps everything.
func Prune(dir string, olderThan time.Duration, now time.Time) ([]Backup, error) {
	if olderThan <= 0 {
		return nil, nil
	}
	all, err := List(dir)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-olderThan)
	var removed []Backup
	var errs []error
	for _, b := range all {
		if !b.Created.Before(cutoff) {
			continue
		}
		if err := os.Remove(b.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, b)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("backup: prune: %w", errors.Join(errs...))
	}
	return removed, nil
}
