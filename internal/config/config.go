package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Project identifies the project and the upload mounts a run walks over.
type Project struct {
	Name         string   `toml:"name"`
	Mounts       []string `toml:"mounts"`
	SubjectsFile string   `toml:"subjects_file"`
}

// Paths contains local directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
}

// Remote configures the shared-file service hosting the mounts.
type Remote struct {
	Backend        string `toml:"backend"`
	URL            string `toml:"url"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	Root           string `toml:"root"`
	DirectoryFile  string `toml:"directory_file"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Mail configures outcome mails to contributors and the support address.
type Mail struct {
	Enabled        bool   `toml:"enabled"`
	SMTPHost       string `toml:"smtp_host"`
	SMTPPort       int    `toml:"smtp_port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	From           string `toml:"from"`
	SupportAddress string `toml:"support_address"`
}

// Ntfy configures the optional operator run summary push.
type Ntfy struct {
	Topic          string `toml:"topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Validation selects the validator set and integration policy.
type Validation struct {
	// Restricted narrows every family to its structural validators.
	Restricted     bool `toml:"restricted"`
	AllowOverwrite bool `toml:"allow_overwrite"`
	// Families served by the built-in bids plugin.
	Families []string `toml:"families"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Ledger configures where finished run records are archived in addition to
// the work directory.
type Ledger struct {
	Archive  string `toml:"archive"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
}

// Config encapsulates all configuration values for caravel.
type Config struct {
	Project    Project    `toml:"project"`
	Paths      Paths      `toml:"paths"`
	Remote     Remote     `toml:"remote"`
	Mail       Mail       `toml:"mail"`
	Ntfy       Ntfy       `toml:"ntfy"`
	Validation Validation `toml:"validation"`
	Logging    Logging    `toml:"logging"`
	Ledger     Ledger     `toml:"ledger"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/caravel/config.toml")
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

	if err := cfg.Normalize(); err != nil {
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
		if _, err := os.Stat(expanded); err != nil {
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
	projectPath, err := filepath.Abs("caravel.toml")
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

// LogDir holds the per-run stdout log and the JSON ledger files.
func (c *Config) LogDir() string { return filepath.Join(c.Paths.WorkDir, "logs") }

// ReportsDir holds the local audit copy of every report.
func (c *Config) ReportsDir() string { return filepath.Join(c.Paths.WorkDir, "local_reports") }

// LayoutsDir holds the layout index snapshots.
func (c *Config) LayoutsDir() string { return filepath.Join(c.Paths.WorkDir, "layouts") }

// HistoryPath is the SQLite run history database.
func (c *Config) HistoryPath() string { return filepath.Join(c.Paths.WorkDir, "caravel.db") }

// LockPath is the local single-run guard file.
func (c *Config) LockPath() string { return filepath.Join(c.Paths.WorkDir, "caravel.lock") }

// EnsureDirectories creates the work directory tree.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.LogDir(), c.ReportsDir(), c.LayoutsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

const redacted = "***"

// Redacted returns a copy safe to persist in the run inputs snapshot.
func (c *Config) Redacted() Config {
	out := *c
	out.Project.Mounts = append([]string(nil), c.Project.Mounts...)
	out.Validation.Families = append([]string(nil), c.Validation.Families...)
	if out.Remote.Password != "" {
		out.Remote.Password = redacted
	}
	if out.Mail.Password != "" {
		out.Mail.Password = redacted
	}
	return out
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
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
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
