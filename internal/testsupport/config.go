package testsupport

import (
	"path/filepath"
	"testing"

	"caravel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with a unique work directory per test
// and the localfs backend rooted next to it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Project.Name = "proj"
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Remote.Backend = config.BackendLocalFS
	cfgVal.Remote.Root = filepath.Join(base, "store")
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithStoreRoot points the localfs backend at root, typically a Fixture root.
func WithStoreRoot(root string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.Root = root
	}
}

// WithMounts sets the upload mounts processed by a run.
func WithMounts(mounts ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Project.Mounts = append([]string(nil), mounts...)
	}
}

// WithMail enables mail with a support address.
func WithMail(support string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mail.Enabled = true
		b.cfg.Mail.SMTPHost = "127.0.0.1"
		b.cfg.Mail.From = "caravel@example.org"
		b.cfg.Mail.SupportAddress = support
	}
}

// WithAllowOverwrite toggles overwriting already collected datasets.
func WithAllowOverwrite(allow bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Validation.AllowOverwrite = allow
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
