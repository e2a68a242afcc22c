// Package scan expands a user-selected path into the ordered sequence of
// uploadable image files.
package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects how a target path expands into files.
type Mode string

const (
	// ModeSingle uploads explicitly selected files, one result record each.
	ModeSingle Mode = "single"
	// ModeGroup uploads every image directly under a folder, one aggregate
	// result record for the folder.
	ModeGroup Mode = "group"
)

// ParseMode validates a mode string from config or flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSingle, ModeGroup:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown upload mode %q (want %q or %q)", s, ModeSingle, ModeGroup)
}

// ErrInvalidFileType marks a file whose extension is not an accepted image
// type. In single mode it fails only that entry, not the run.
var ErrInvalidFileType = errors.New("not an accepted image type")

// imageExts is the accepted extension set, matching what the hosting API
// accepts for the source field.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImage reports whether path has an accepted image extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// Enumerate expands path into the ordered list of files to upload.
//
// Single mode requires path to be a regular file with an accepted image
// extension and returns a one-element list. Group mode lists the direct
// children of a folder with accepted extensions, in directory enumeration
// order; sub-folders are not traversed. An empty group result is not an
// error.
func Enumerate(path string, mode Mode) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}

	switch mode {
	case ModeSingle:
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory, single mode wants a file", path)
		}
		if !IsImage(path) {
			return nil, fmt.Errorf("%s: %w", path, ErrInvalidFileType)
		}
		return []string{path}, nil

	case ModeGroup:
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory, group mode wants a folder", path)
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("cannot list %s: %w", path, err)
		}
		var files []string
		for _, entry := range entries {
			if entry.IsDir() || !entry.Type().IsRegular() {
				continue
			}
			if !IsImage(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(path, entry.Name()))
		}
		return files, nil
	}

	return nil, fmt.Errorf("unknown upload mode %q", mode)
}
