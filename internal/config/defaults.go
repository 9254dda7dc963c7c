package config

const (
	defaultBind                = "127.0.0.1:8008"
	defaultMaxBodyBytes        = 64 << 20
	defaultReadHeaderTimeout   = 5
	defaultReadTimeout         = 120
	defaultWriteTimeout        = 600
	defaultIdleTimeout         = 60
	defaultShutdownTimeout     = 5
	defaultStagingDir          = "~/.local/share/forms2xml/staging"
	defaultLogDir              = "~/.local/share/forms2xml/logs"
	defaultF2XBinary           = "frmf2xml"
	defaultX2FBinary           = "frmxml2f"
	defaultDisplay             = ":0"
	defaultConversionTimeout   = 300
	defaultStaleMaxAgeMinutes  = 60
	defaultSweepIntervalMinute = 15
	defaultJournalRetention    = 30
	defaultJournalFile         = "journal.db"
	defaultUpgradeSuffix       = "-v11"
	defaultCellWidth           = 12
	defaultCellHeight          = 24
	defaultWatchConcurrency    = 8
	defaultWatchRetries        = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:                   defaultBind,
			MaxBodyBytes:           defaultMaxBodyBytes,
			ReadHeaderTimeout:      defaultReadHeaderTimeout,
			ReadTimeout:            defaultReadTimeout,
			WriteTimeout:           defaultWriteTimeout,
			IdleTimeout:            defaultIdleTimeout,
			ShutdownTimeoutSeconds: defaultShutdownTimeout,
		},
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Forms: Forms{
			Display:   defaultDisplay,
			F2XBinary: defaultF2XBinary,
			X2FBinary: defaultX2FBinary,
		},
		Conversion: Conversion{
			TimeoutSeconds:      defaultConversionTimeout,
			StaleMaxAgeMinutes:  defaultStaleMaxAgeMinutes,
			SweepIntervalMinute: defaultSweepIntervalMinute,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetention,
		},
		Upgrade: Upgrade{
			Suffix:           defaultUpgradeSuffix,
			Transform:        true,
			CellWidth:        defaultCellWidth,
			CellHeight:       defaultCellHeight,
			WatchConcurrency: defaultWatchConcurrency,
			WatchRetries:     defaultWatchRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
