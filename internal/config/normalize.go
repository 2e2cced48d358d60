package config

import (
	"fmt"
	"os"
	"strings"
)

// Normalize trims values, expands paths and applies environment fallbacks.
// Load calls it; callers that mutate a loaded Config (CLI overrides) call it
// again before Validate.
func (c *Config) Normalize() error {
	if err := c.normalizeProject(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRemote(); err != nil {
		return err
	}
	c.normalizeMail()
	c.normalizeValidation()
	c.normalizeLogging()
	c.normalizeLedger()
	return nil
}

func (c *Config) normalizeProject() error {
	c.Project.Name = strings.TrimSpace(c.Project.Name)
	mounts := make([]string, 0, len(c.Project.Mounts))
	seen := make(map[string]struct{}, len(c.Project.Mounts))
	for _, mount := range c.Project.Mounts {
		if strings.TrimSpace(mount) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(mount))
		if err != nil {
			return fmt.Errorf("project.mounts: %w", err)
		}
		if _, dup := seen[expanded]; dup {
			continue
		}
		seen[expanded] = struct{}{}
		mounts = append(mounts, expanded)
	}
	c.Project.Mounts = mounts
	if strings.TrimSpace(c.Project.SubjectsFile) != "" {
		var err error
		if c.Project.SubjectsFile, err = expandPath(strings.TrimSpace(c.Project.SubjectsFile)); err != nil {
			return fmt.Errorf("project.subjects_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	var err error
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() error {
	c.Remote.Backend = strings.ToLower(strings.TrimSpace(c.Remote.Backend))
	if c.Remote.Backend == "" {
		c.Remote.Backend = defaultRemoteBackend
	}
	c.Remote.URL = strings.TrimRight(strings.TrimSpace(c.Remote.URL), "/")
	if c.Remote.URL == "" {
		if value, ok := os.LookupEnv("CARAVEL_REMOTE_URL"); ok {
			c.Remote.URL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Remote.User = strings.TrimSpace(c.Remote.User)
	if c.Remote.User == "" {
		if value, ok := os.LookupEnv("CARAVEL_REMOTE_USER"); ok {
			c.Remote.User = strings.TrimSpace(value)
		}
	}
	if c.Remote.Password == "" {
		if value, ok := os.LookupEnv("CARAVEL_REMOTE_PASSWORD"); ok {
			c.Remote.Password = value
		}
	}
	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = defaultRemoteRequestTimeout
	}
	var err error
	if strings.TrimSpace(c.Remote.Root) != "" {
		if c.Remote.Root, err = expandPath(strings.TrimSpace(c.Remote.Root)); err != nil {
			return fmt.Errorf("remote.root: %w", err)
		}
	}
	if strings.TrimSpace(c.Remote.DirectoryFile) != "" {
		if c.Remote.DirectoryFile, err = expandPath(strings.TrimSpace(c.Remote.DirectoryFile)); err != nil {
			return fmt.Errorf("remote.directory_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeMail() {
	c.Mail.SMTPHost = strings.TrimSpace(c.Mail.SMTPHost)
	if c.Mail.SMTPPort <= 0 {
		c.Mail.SMTPPort = defaultSMTPPort
	}
	c.Mail.Username = strings.TrimSpace(c.Mail.Username)
	if c.Mail.Password == "" {
		if value, ok := os.LookupEnv("CARAVEL_SMTP_PASSWORD"); ok {
			c.Mail.Password = value
		}
	}
	c.Mail.From = strings.TrimSpace(c.Mail.From)
	c.Mail.SupportAddress = strings.TrimSpace(c.Mail.SupportAddress)
	c.Ntfy.Topic = strings.TrimSpace(c.Ntfy.Topic)
	if c.Ntfy.RequestTimeout <= 0 {
		c.Ntfy.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeLedger() {
	c.Ledger.Archive = strings.ToLower(strings.TrimSpace(c.Ledger.Archive))
	c.Ledger.Bucket = strings.TrimSpace(c.Ledger.Bucket)
	c.Ledger.Prefix = strings.TrimSpace(c.Ledger.Prefix)
	c.Ledger.Endpoint = strings.TrimSpace(c.Ledger.Endpoint)
	c.Ledger.Region = strings.TrimSpace(c.Ledger.Region)
	if c.Ledger.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok && strings.TrimSpace(value) != "" {
			c.Ledger.Region = strings.TrimSpace(value)
		} else {
			c.Ledger.Region = defaultLedgerRegion
		}
	}
}

func (c *Config) normalizeValidation() {
	families := make([]string, 0, len(c.Validation.Families))
	seen := make(map[string]struct{}, len(c.Validation.Families))
	for _, family := range c.Validation.Families {
		family = strings.TrimSpace(family)
		if family == "" {
			continue
		}
		if _, dup := seen[family]; dup {
			continue
		}
		seen[family] = struct{}{}
		families = append(families, family)
	}
	c.Validation.Families = families
}
