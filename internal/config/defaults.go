package config

const (
	defaultWorkDir              = "~/.local/share/caravel"
	defaultRemoteBackend        = "nextcloud"
	defaultRemoteRequestTimeout = 60
	defaultSMTPPort             = 25
	defaultNtfyRequestTimeout   = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "warn"
	defaultLogRetentionDays     = 90
	defaultLedgerRegion         = "us-east-1"

	// BackendNextcloud talks WebDAV + OCS to a remote server.
	BackendNextcloud = "nextcloud"
	// BackendLocalFS operates on a directly mounted directory tree.
	BackendLocalFS = "localfs"

	ArchiveS3  = "s3"
	ArchiveGCS = "gcs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
		},
		Remote: Remote{
			Backend:        defaultRemoteBackend,
			RequestTimeout: defaultRemoteRequestTimeout,
		},
		Mail: Mail{
			SMTPPort: defaultSMTPPort,
		},
		Ntfy: Ntfy{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
