package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateUpgrade(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateUpgrade() error {
	if strings.TrimSpace(c.Upgrade.Suffix) == "" {
		return errors.New("upgrade.suffix must not be empty")
	}
	if strings.ContainsAny(c.Upgrade.Suffix, `/\`) {
		return fmt.Errorf("upgrade.suffix must not contain path separators: %q", c.Upgrade.Suffix)
	}
	return ensurePositiveMap(map[string]int{
		"upgrade.cell_width":        c.Upgrade.CellWidth,
		"upgrade.cell_height":       c.Upgrade.CellHeight,
		"upgrade.watch_concurrency": c.Upgrade.WatchConcurrency,
		"upgrade.watch_retries":     c.Upgrade.WatchRetries,
	})
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind must be host:port: %w", err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.read_timeout":        c.Server.ReadTimeout,
		"server.write_timeout":       c.Server.WriteTimeout,
		"server.idle_timeout":        c.Server.IdleTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeoutSeconds,
	})
}

func (c *Config) validateConversion() error {
	if err := ensurePositiveMap(map[string]int{
		"conversion.timeout_seconds":        c.Conversion.TimeoutSeconds,
		"conversion.stale_max_age_minutes":  c.Conversion.StaleMaxAgeMinutes,
		"conversion.sweep_interval_minutes": c.Conversion.SweepIntervalMinute,
	}); err != nil {
		return err
	}
	if c.Conversion.StaleMaxAgeMinutes*60 <= c.Conversion.TimeoutSeconds {
		return errors.New("conversion.stale_max_age_minutes must exceed conversion.timeout_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", strings.TrimSpace(c.Logging.Level))
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
