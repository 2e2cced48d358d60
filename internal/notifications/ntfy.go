package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"caravel/internal/config"
	"caravel/internal/logging"
)

// RunSummary is what operators see after each run.
type RunSummary struct {
	Project    string
	RunID      string
	Integrated int
	Reported   int
	Internal   int
	Skipped    int
	Aborted    bool
	Reason     string
	Duration   time.Duration
}

// Operator publishes run summaries.
type Operator interface {
	Publish(ctx context.Context, summary RunSummary) error
}

// NewOperator returns an ntfy-backed Operator, or a no-op when no topic is
// configured.
func NewOperator(cfg *config.Config, logger *slog.Logger) Operator {
	if cfg == nil || strings.TrimSpace(cfg.Ntfy.Topic) == "" {
		return noopOperator{}
	}
	timeout := time.Duration(cfg.Ntfy.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyOperator{
		endpoint: strings.TrimSpace(cfg.Ntfy.Topic),
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "ntfy"),
	}
}

type noopOperator struct{}

func (noopOperator) Publish(context.Context, RunSummary) error { return nil }

type ntfyOperator struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func (o *ntfyOperator) Publish(ctx context.Context, summary RunSummary) error {
	title, tags, priority := "Caravel run complete", "white_check_mark", "default"
	if summary.Aborted {
		title, tags, priority = "Caravel run aborted", "rotating_light", "high"
	} else if summary.Internal > 0 {
		title, tags, priority = "Caravel run finished with internal errors", "warning", "high"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s run %s", summary.Project, summary.RunID)
	if summary.Aborted && summary.Reason != "" {
		fmt.Fprintf(&body, " aborted: %s", summary.Reason)
	}
	fmt.Fprintf(&body, "\nintegrated %d, reported %d, internal %d, skipped %d\nduration %s",
		summary.Integrated, summary.Reported, summary.Internal, summary.Skipped,
		summary.Duration.Round(time.Second))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, strings.NewReader(body.String()))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Tags", tags)
	req.Header.Set("Priority", priority)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("User-Agent", "caravel/0.1.0")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	o.logger.Debug("run summary published", logging.String("title", title))
	return nil
}
