package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// formsMagic opens every generated module so payloads look like the binary
// format rather than text.
var formsMagic = []byte{0x00, 0x00, 0x12, 0x02, 0x46, 0x4d, 0x42, 0x00}

// ModuleBytes returns a deterministic pseudo-binary module of the requested
// size. A size <= len(header) returns just the header.
func ModuleBytes(size int) []byte {
	if size < len(formsMagic) {
		size = len(formsMagic)
	}
	out := make([]byte, size)
	copy(out, formsMagic)
	for i := len(formsMagic); i < size; i++ {
		out[i] = byte(i * 31)
	}
	return out
}

// WriteFile writes data to path, creating parent directories, and returns
// the path.
func WriteFile(t testing.TB, path string, data []byte) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// DirEntries lists the names in dir, failing the test on error. A missing
// directory is reported as empty.
func DirEntries(t testing.TB, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
