package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"forms2xml/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Journal.Path = filepath.Join(base, "logs", "journal.db")
	cfgVal.Forms.DBConn = "forms/forms@test"
	cfgVal.Conversion.TimeoutSeconds = 30

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDBConn overrides the Forms database connection on the test config.
func WithDBConn(conn string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Forms.DBConn = conn
	}
}

// WithoutJournal disables the conversion journal.
func WithoutJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = false
	}
}

// WithMaxBodyBytes overrides the request body limit.
func WithMaxBodyBytes(limit int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.MaxBodyBytes = limit
	}
}

// WithStubbedBinaries writes stub executables into a fake Oracle home and
// points the config at it. If names is empty, the Forms converter tools are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"frmf2xml", "frmxml2f"}
		}
		home := filepath.Join(b.baseDir, "oracle")
		binDir := filepath.Join(home, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.cfg.Forms.OracleHome = home
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
