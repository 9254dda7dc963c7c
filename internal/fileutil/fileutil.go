// Package fileutil holds the file copy and move helpers shared by the codec
// adapter and the CLI.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// CopyFile copies src to dst, creating or truncating dst with mode 0600. A
// partially written dst is removed on failure.
func CopyFile(src, dst string) error {
	_, err := copyFile(src, dst, 0o600)
	return err
}

func copyFile(src, dst string, mode os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, in)
	if err = errors.Join(err, out.Close()); err != nil {
		_ = os.Remove(dst)
		return written, err
	}
	return written, nil
}

// MoveFile renames src to dst. When the two paths live on different
// filesystems it copies instead, keeping the source permissions, and only
// removes src once the full size has landed.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	written, err := copyFile(src, dst, info.Mode().Perm())
	if err != nil {
		return err
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	return os.Remove(src)
}
