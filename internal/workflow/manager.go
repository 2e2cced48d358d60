package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"caravel/internal/config"
	"caravel/internal/ledger"
	"caravel/internal/logging"
	"caravel/internal/notifications"
	"caravel/internal/remote"
	"caravel/internal/validation"
)

// Dependencies are the collaborators a Manager drives. Mailer and Operator
// default to no-op implementations.
type Dependencies struct {
	Store    remote.Store
	Registry *validation.Registry
	Ledger   *ledger.Ledger
	Mailer   notifications.Mailer
	Operator notifications.Operator
	// Subjects is the optional allow-list handed to validators.
	Subjects []string
	Version  string
	// Started stamps the run's artifacts; zero means the time Run is called.
	Started time.Time
}

// Manager runs one batch over the configured mounts.
type Manager struct {
	cfg    *config.Config
	runID  string
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
}

// NewManager constructs a manager for a single run identified by runID.
func NewManager(cfg *config.Config, runID string, deps Dependencies, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Mailer == nil {
		deps.Mailer = notifications.NewMailer(nil, logger)
	}
	if deps.Operator == nil {
		deps.Operator = notifications.NewOperator(nil, logger)
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Manager{
		cfg:    cfg,
		runID:  runID,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "workflow"),
		now:    time.Now,
	}
}

// RunID returns the identifier stamped on logs and ledger rows.
func (m *Manager) RunID() string { return m.runID }

func (m *Manager) scratchDir() (string, error) {
	dir := filepath.Join(m.cfg.Paths.WorkDir, "tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

func (m *Manager) runtimeInfo() ledger.Runtime {
	host, _ := os.Hostname()
	var families []string
	if m.deps.Registry != nil {
		families = m.deps.Registry.Families()
	}
	return ledger.Runtime{
		Tool:      "caravel",
		Version:   m.deps.Version,
		GoVersion: runtime.Version(),
		Host:      host,
		Families:  families,
	}
}
