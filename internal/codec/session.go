package codec

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"forms2xml/internal/deps"
	"forms2xml/internal/logging"
	"forms2xml/internal/services"
)

// Option configures a Session.
type Option func(*Session)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(s *Session) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResolver overrides how tool binaries are located.
func WithResolver(resolve func(command string, dirs ...string) (string, error)) Option {
	return func(s *Session) {
		if resolve != nil {
			s.resolve = resolve
		}
	}
}

// Session is the process-wide converter connection. It is built once at
// startup by Connect and is safe for concurrent use afterwards.
type Session struct {
	opts    Options
	f2x     string
	x2f     string
	env     []string
	exec    Executor
	logger  *slog.Logger
	resolve func(command string, dirs ...string) (string, error)
}

// Connect validates the Forms environment and returns a ready Session. Any
// failure here should abort startup.
func Connect(ctx context.Context, opts Options, options ...Option) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Session{
		opts:    opts,
		exec:    commandExecutor{},
		logger:  logging.NewNop(),
		resolve: deps.Resolve,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "codec")

	if strings.TrimSpace(opts.DBConn) == "" {
		return nil, services.Wrap(services.ErrResource, "codec", "connect",
			"database connection not configured (set forms.db_conn or FORMS2XML_DB_CONN)", nil)
	}
	workDir := strings.TrimSpace(opts.WorkDir)
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, "codec", "connect", "create work directory", err)
	}
	s.opts.WorkDir = workDir

	searchDirs := toolDirs(opts.OracleHome)
	var err error
	if s.f2x, err = s.resolve(defaultString(opts.F2XBinary, "frmf2xml"), searchDirs...); err != nil {
		return nil, services.Wrap(services.ErrResource, "codec", "connect", "locate frmf2xml", err)
	}
	if s.x2f, err = s.resolve(defaultString(opts.X2FBinary, "frmxml2f"), searchDirs...); err != nil {
		return nil, services.Wrap(services.ErrResource, "codec", "connect", "locate frmxml2f", err)
	}
	s.env = formsEnv(os.Environ(), opts)

	s.logger.Info("forms session ready",
		logging.String("frmf2xml", s.f2x),
		logging.String("frmxml2f", s.x2f),
		logging.String("oracle_home", opts.OracleHome),
		logging.String(logging.FieldDBConn, opts.DBConn),
	)
	return s, nil
}

// Tools returns the resolved converter binaries.
func (s *Session) Tools() (f2x, x2f string) {
	return s.f2x, s.x2f
}

func toolDirs(oracleHome string) []string {
	oracleHome = strings.TrimSpace(oracleHome)
	if oracleHome == "" {
		return nil
	}
	return []string{filepath.Join(oracleHome, "bin")}
}

// formsEnv rebuilds the tool environment from base, replacing the variables
// the Forms runtime reads.
func formsEnv(base []string, opts Options) []string {
	env := make([]string, 0, len(base)+6)
	for _, entry := range base {
		key, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		switch key {
		case "TERM", "DISPLAY", "PATH", "FORMS_PATH", "ORACLE_HOME", "LD_LIBRARY_PATH":
			continue
		}
		env = append(env, entry)
	}

	path := lookupEnv(base, "PATH")
	libPath := lookupEnv(base, "LD_LIBRARY_PATH")
	if home := strings.TrimSpace(opts.OracleHome); home != "" {
		bin := filepath.Join(home, "bin")
		path = joinList(bin, path)
		libPath = joinList(bin+string(os.PathListSeparator)+filepath.Join(home, "lib"), libPath)
		env = append(env, "ORACLE_HOME="+home)
	}
	env = append(env,
		"PATH="+path,
		"LD_LIBRARY_PATH="+libPath,
		"TERM=xterm",
	)
	if display := strings.TrimSpace(opts.Display); display != "" {
		env = append(env, "DISPLAY="+display)
	}
	if formsPath := strings.TrimSpace(opts.FormsPath); formsPath != "" {
		env = append(env, "FORMS_PATH="+formsPath)
	}
	return env
}

func lookupEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v
		}
	}
	return ""
}

func joinList(head, tail string) string {
	switch {
	case head == "":
		return tail
	case tail == "":
		return head
	default:
		return head + string(os.PathListSeparator) + tail
	}
}

func defaultString(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

// Requirements lists the tool binaries a Session needs, for dependency
// reports.
func Requirements(opts Options) []deps.Requirement {
	dirs := toolDirs(opts.OracleHome)
	return []deps.Requirement{
		{
			Name:        "frmf2xml",
			Command:     defaultString(opts.F2XBinary, "frmf2xml"),
			Description: "Dumps binary Forms modules to XML",
			SearchDirs:  dirs,
		},
		{
			Name:        "frmxml2f",
			Command:     defaultString(opts.X2FBinary, "frmxml2f"),
			Description: "Compiles XML back into binary Forms modules",
			SearchDirs:  dirs,
		},
	}
}
