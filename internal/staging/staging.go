package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"forms2xml/internal/logging"
	"forms2xml/internal/services"
)

// FilePrefix marks every file the gateway stages so the stale sweeper can
// tell them apart from anything else living in the staging directory.
const FilePrefix = "forms2xml-"

// Manager allocates request-scoped staged files inside a single directory.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// NewManager returns a Manager rooted at dir. The directory is created if it
// does not exist.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrResource, "staging", "init", "staging directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, "staging", "init", "create staging directory", err)
	}
	return &Manager{dir: dir, logger: logging.NewComponentLogger(logger, "staging")}, nil
}

// Dir returns the staging directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Scope opens a new acquisition scope. Callers defer Close immediately.
func (m *Manager) Scope() *Scope {
	return &Scope{manager: m}
}

// Scope tracks the staged files created while handling one request.
type Scope struct {
	manager *Manager

	mu     sync.Mutex
	files  []*StagedFile
	closed bool
}

// StagedFile is a uniquely named file owned by the scope that created it.
type StagedFile struct {
	path string

	once sync.Once
	err  error
}

// Path returns the absolute path of the staged file.
func (f *StagedFile) Path() string {
	return f.path
}

// Release deletes the file. Only the first call touches the filesystem;
// later calls return the first result.
func (f *StagedFile) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = services.Wrap(services.ErrResource, "staging", "release", f.path, err)
		}
	})
	return f.err
}

// Acquire creates an empty file named <prefix><uuid><suffix> and registers it
// with the scope.
func (s *Scope) Acquire(prefix, suffix string) (*StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, services.Wrap(services.ErrResource, "staging", "acquire", "scope already closed", nil)
	}

	name := FilePrefix + prefix + uuid.NewString() + suffix
	path := filepath.Join(s.manager.dir, name)
	handle, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "staging", "acquire", fmt.Sprintf("create %s", name), err)
	}
	if err := handle.Close(); err != nil {
		_ = os.Remove(path)
		return nil, services.Wrap(services.ErrResource, "staging", "acquire", fmt.Sprintf("close %s", name), err)
	}

	file := &StagedFile{path: path}
	s.files = append(s.files, file)
	s.manager.logger.Debug("staged file acquired", logging.String("path", path))
	return file, nil
}

// Release deletes a file previously acquired through this scope.
func (s *Scope) Release(file *StagedFile) error {
	if file == nil {
		return nil
	}
	return file.Release()
}

// Close releases every file the scope acquired and rejects further
// acquisitions. Calling Close more than once is harmless.
func (s *Scope) Close() error {
	s.mu.Lock()
	files := s.files
	s.files = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, file := range files {
		if err := file.Release(); err != nil {
			errs = append(errs, err)
			logging.WarnWithContext(s.manager.logger, "failed to release staged file", "staging_release_failed",
				logging.String("path", file.path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "file left for the stale sweeper"),
			)
		}
	}
	return errors.Join(errs...)
}
