package config

const (
	defaultProjectsDir        = "~/.local/share/coursekit/projects"
	defaultStagingDir         = "~/.local/share/coursekit/staging"
	defaultLogDir             = "~/.local/share/coursekit/logs"
	defaultCatalogPath        = "~/.local/share/coursekit/catalog.db"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultCompressionLevel   = 6
	defaultMinFreeMiB         = 64
	defaultMaxEntryMiB        = 4096
	defaultStagingMaxAgeHours = 24
	defaultBackupKeep         = 5
	defaultHandleScheme       = "blob"
	maxCompressionLevel       = 9
	minCompressionLevel       = 0
	projectsDirEnv            = "COURSEKIT_PROJECTS_DIR"
	logLevelEnv               = "COURSEKIT_LOG_LEVEL"
	catalogPathEnv            = "COURSEKIT_CATALOG"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectsDir: defaultProjectsDir,
			StagingDir:  defaultStagingDir,
			LogDir:      defaultLogDir,
			CatalogPath: defaultCatalogPath,
		},
		Archive: Archive{
			CompressionLevel:  defaultCompressionLevel,
			MinFreeMiB:        defaultMinFreeMiB,
			MaxEntryMiB:       defaultMaxEntryMiB,
			StagingMaxAgeHrs:  defaultStagingMaxAgeHours,
			VerifyAfterExport: true,
		},
		Backup: Backup{
			Enabled: true,
			Keep:    defaultBackupKeep,
		},
		Cache: Cache{
			HandleScheme: defaultHandleScheme,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
