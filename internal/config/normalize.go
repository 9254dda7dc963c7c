package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeServer()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeForms(); err != nil {
		return err
	}
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if value, ok := os.LookupEnv("FORMS2XML_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Server.Bind = strings.TrimSpace(value)
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		c.Server.APIToken = strings.TrimSpace(os.Getenv("FORMS2XML_API_TOKEN"))
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeForms() error {
	c.Forms.DBConn = strings.TrimSpace(c.Forms.DBConn)
	if c.Forms.DBConn == "" {
		if value, ok := os.LookupEnv("FORMS2XML_DB_CONN"); ok {
			c.Forms.DBConn = strings.TrimSpace(value)
		}
	}
	c.Forms.OracleHome = strings.TrimSpace(c.Forms.OracleHome)
	if c.Forms.OracleHome == "" {
		if value, ok := os.LookupEnv("ORACLE_HOME"); ok {
			c.Forms.OracleHome = strings.TrimSpace(value)
		}
	}
	if c.Forms.OracleHome != "" {
		var err error
		if c.Forms.OracleHome, err = expandPath(c.Forms.OracleHome); err != nil {
			return fmt.Errorf("forms.oracle_home: %w", err)
		}
	}
	c.Forms.FormsPath = strings.TrimSpace(c.Forms.FormsPath)
	if c.Forms.FormsPath == "" {
		if value, ok := os.LookupEnv("FORMS_PATH"); ok {
			c.Forms.FormsPath = strings.TrimSpace(value)
		}
	}
	c.Forms.Display = strings.TrimSpace(c.Forms.Display)
	if value, ok := os.LookupEnv("DISPLAY"); ok && strings.TrimSpace(value) != "" && c.Forms.Display == defaultDisplay {
		c.Forms.Display = strings.TrimSpace(value)
	}
	if c.Forms.Display == "" {
		c.Forms.Display = defaultDisplay
	}
	c.Forms.F2XBinary = strings.TrimSpace(c.Forms.F2XBinary)
	if c.Forms.F2XBinary == "" {
		c.Forms.F2XBinary = defaultF2XBinary
	}
	c.Forms.X2FBinary = strings.TrimSpace(c.Forms.X2FBinary)
	if c.Forms.X2FBinary == "" {
		c.Forms.X2FBinary = defaultX2FBinary
	}
	return nil
}

func (c *Config) normalizeJournal() error {
	c.Journal.Path = strings.TrimSpace(c.Journal.Path)
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.Paths.LogDir, defaultJournalFile)
	}
	var err error
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	if c.Journal.RetentionDays < 0 {
		c.Journal.RetentionDays = 0
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
