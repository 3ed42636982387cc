// Package atomicio implements atomic file writes via the
// temp-file-then-rename pattern, plus JSON helpers and the
// backup/restore primitive used by the transaction layer.
//
// A write either fully replaces the target file or leaves it untouched;
// a concurrent reader never observes partial content.
package atomicio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const tmpPattern = ".dagaz-tmp-*"

// WriteFile atomically writes data to path: the bytes go to a temp file
// in the target directory, are fsynced, and the temp file is renamed
// over path. Parent directories are created as needed. On any failure
// the original file is left intact and the temp file is removed.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicio: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("atomicio: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("atomicio: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("atomicio: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicio: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("atomicio: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomicio: rename: %w", err)
	}
	success = true
	return nil
}

// ReadJSON reads the file at path and unmarshals it into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("atomicio: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("atomicio: decode %s: %w", path, err)
	}
	return nil
}

// WriteJSON atomically writes v as indented JSON with a trailing newline.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("atomicio: encode %s: %w", path, err)
	}
	return WriteFile(path, append(data, '\n'), 0o644)
}

// Backup snapshots the current content of path and returns a restore
// function that puts the snapshot back. If the file does not exist at
// backup time, restore removes whatever was written at path since.
//
// Restore itself writes atomically, so a rollback cannot corrupt the
// file it is trying to save.
func Backup(path string) (restore func() error, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if !errors.Is(readErr, os.ErrNotExist) {
			return nil, fmt.Errorf("atomicio: backup %s: %w", path, readErr)
		}
		return func() error {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return fmt.Errorf("atomicio: restore (remove) %s: %w", path, rmErr)
			}
			return nil
		}, nil
	}

	var perm os.FileMode = 0o644
	if info, statErr := os.Stat(path); statErr == nil {
		perm = info.Mode().Perm()
	}

	return func() error {
		if wErr := WriteFile(path, data, perm); wErr != nil {
			return fmt.Errorf("atomicio: restore %s: %w", path, wErr)
		}
		return nil
	}, nil
}
