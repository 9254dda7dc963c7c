package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP listener settings.
type Server struct {
	Bind                   string `toml:"bind"`
	MaxBodyBytes           int64  `toml:"max_body_bytes"`
	ReadHeaderTimeout      int    `toml:"read_header_timeout"`
	ReadTimeout            int    `toml:"read_timeout"`
	WriteTimeout           int    `toml:"write_timeout"`
	IdleTimeout            int    `toml:"idle_timeout"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout"`
	// APIToken guards the /api endpoints when set. The conversion route is
	// never guarded.
	APIToken string `toml:"api_token"`
}

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Forms contains the Oracle Forms tooling environment and the database
// connection used by the converter session.
type Forms struct {
	OracleHome string `toml:"oracle_home"`
	// FormsPath is the library search path handed to the tools as FORMS_PATH.
	FormsPath string `toml:"forms_path"`
	Display   string `toml:"display"`
	DBConn    string `toml:"db_conn"`
	F2XBinary string `toml:"frmf2xml"`
	X2FBinary string `toml:"frmxml2f"`
}

// Conversion contains per-request limits and staging hygiene settings.
type Conversion struct {
	TimeoutSeconds      int `toml:"timeout_seconds"`
	StaleMaxAgeMinutes  int `toml:"stale_max_age_minutes"`
	SweepIntervalMinute int `toml:"sweep_interval_minutes"`
}

// Journal contains configuration for the conversion history database.
type Journal struct {
	Enabled       bool   `toml:"enabled"`
	Path          string `toml:"path"`
	RetentionDays int    `toml:"retention_days"`
}

// Upgrade contains the Forms 6 to 11 pipeline settings used by the upgrade
// and watch commands.
type Upgrade struct {
	// TargetAddr is the gateway that compiles upgraded modules, typically a
	// Forms 11 installation. Empty compiles through the dumping gateway.
	TargetAddr       string `toml:"target_addr"`
	Suffix           string `toml:"suffix"`
	Transform        bool   `toml:"transform"`
	CellWidth        int    `toml:"cell_width"`
	CellHeight       int    `toml:"cell_height"`
	WatchConcurrency int    `toml:"watch_concurrency"`
	WatchRetries     int    `toml:"watch_retries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the gateway.
//
// Configuration sections by subsystem:
//   - Server: listen address, body limit, HTTP timeouts
//   - Paths: staging and log directories
//   - Forms: Oracle Forms tool environment and database connection
//   - Conversion: per-conversion timeout and stale staging sweep
//   - Journal: SQLite conversion history
//   - Upgrade: Forms 6 to 11 pipeline and directory watcher
//   - Logging: log format and level
type Config struct {
	Server     Server     `toml:"server"`
	Paths      Paths      `toml:"paths"`
	Forms      Forms      `toml:"forms"`
	Conversion Conversion `toml:"conversion"`
	Journal    Journal    `toml:"journal"`
	Upgrade    Upgrade    `toml:"upgrade"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/forms2xml/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("forms2xml.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for gateway operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Journal.Enabled {
		if dir := filepath.Dir(c.Journal.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create journal directory %q: %w", dir, err)
			}
		}
	}
	return nil
}

// ConversionTimeout returns the upper bound for a single conversion.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Conversion.TimeoutSeconds) * time.Second
}

// StaleMaxAge returns how old a staged file must be before the sweeper removes it.
func (c *Config) StaleMaxAge() time.Duration {
	return time.Duration(c.Conversion.StaleMaxAgeMinutes) * time.Minute
}

// SweepInterval returns how often the staging directory is swept while serving.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Conversion.SweepIntervalMinute) * time.Minute
}

// LockPath returns the instance lock guarding the staging directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StagingDir, "forms2xml.lock")
}

// LogPath returns the gateway log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "forms2xml.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
