package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable for any command.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateMail(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	return nil
}

// ValidateRun adds the checks only a batch run needs: a project identifier
// and at least one upload mount.
func (c *Config) ValidateRun() error {
	if c.Project.Name == "" {
		return errors.New("project.name is required (or pass --project)")
	}
	if len(c.Project.Mounts) == 0 {
		return errors.New("project.mounts must list at least one upload mount (or pass --mount)")
	}
	return c.Validate()
}

func (c *Config) validateRemote() error {
	switch c.Remote.Backend {
	case BackendNextcloud:
		if c.Remote.URL == "" {
			return errors.New("remote.url is required. Set CARAVEL_REMOTE_URL or edit the config file")
		}
		if c.Remote.User == "" || c.Remote.Password == "" {
			return errors.New("remote credentials are required. Set CARAVEL_REMOTE_USER and CARAVEL_REMOTE_PASSWORD or edit the config file")
		}
	case BackendLocalFS:
		if c.Remote.Root == "" {
			return errors.New("remote.root must be set when remote.backend is localfs")
		}
	default:
		return fmt.Errorf("remote.backend: unsupported value %q (want %s or %s)", c.Remote.Backend, BackendNextcloud, BackendLocalFS)
	}
	return nil
}

func (c *Config) validateMail() error {
	if !c.Mail.Enabled {
		return nil
	}
	if c.Mail.SMTPHost == "" {
		return errors.New("mail.smtp_host must be set when mail.enabled is true")
	}
	if c.Mail.From == "" {
		return errors.New("mail.from must be set when mail.enabled is true")
	}
	if c.Mail.SupportAddress == "" {
		return errors.New("mail.support_address must be set when mail.enabled is true")
	}
	if !strings.Contains(c.Mail.SupportAddress, "@") {
		return fmt.Errorf("mail.support_address %q is not a mail address", c.Mail.SupportAddress)
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Archive {
	case "":
		return nil
	case ArchiveS3, ArchiveGCS:
		if c.Ledger.Bucket == "" {
			return fmt.Errorf("ledger.bucket must be set when ledger.archive is %s", c.Ledger.Archive)
		}
		return nil
	default:
		return fmt.Errorf("ledger.archive: unsupported value %q", c.Ledger.Archive)
	}
}
