package notifications

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"caravel/internal/admission"
	"caravel/internal/logging"
	"caravel/internal/report"
	"caravel/internal/validation"
)

// Outcome selects which canned body a mount's mail uses.
type Outcome string

const (
	OutcomePass          Outcome = "pass"
	OutcomeFail          Outcome = "fail"
	OutcomeInternalError Outcome = "internal_error"
)

var bodies = template.Must(template.New("mail").Parse(`
{{define "pass"}}Hello,

The data uploaded to {{.Upload}} for project {{.Project}} passed validation
and has been moved to {{.Collect}}.

{{if .Moved}}Integrated datasets:
{{range .Moved}}  - {{.}}
{{end}}{{end}}{{if .Skipped}}Already present in {{.Collect}} and left in place:
{{range .Skipped}}  - {{.}}
{{end}}{{end}}
The upload area is locked until the data team reopens it.
{{end}}
{{define "fail"}}Hello,

The data uploaded to {{.Upload}} for project {{.Project}} did not pass
validation. Nothing was moved. The full report is attached and has also been
placed in the upload area as report.json and report.docx.

{{.Summary}}
Please correct the issues above and contact {{.Support}} to have the upload
area reopened.
{{end}}
{{define "internal_error"}}Hello,

Validation of {{.Upload}} for project {{.Project}} could not be completed
because of an internal error. The data has not been moved and the support
team has been notified.

Details: {{.Detail}}
{{end}}`))

// MailContext carries what the canned bodies render.
type MailContext struct {
	Project string
	Upload  string
	Collect string
	Support string
	Moved   []string
	Skipped []string
	Summary string
	Detail  string
}

// Notifier sends exactly one outcome mail per processed mount.
type Notifier struct {
	mailer  Mailer
	project string
	support string
	logger  *slog.Logger
	titler  cases.Caser
}

// NewNotifier builds a Notifier. support may be empty, in which case
// internal-error mail goes to contributors only.
func NewNotifier(mailer Mailer, project, support string, logger *slog.Logger) *Notifier {
	return &Notifier{
		mailer:  mailer,
		project: project,
		support: strings.TrimSpace(support),
		logger:  logging.NewComponentLogger(logger, "notifier"),
		titler:  cases.Title(language.Und, cases.NoLower),
	}
}

// Notify sends the outcome mail for item. attachments are only included for
// OutcomeFail. A mount with no resolvable recipients and no support address
// is logged and left silent.
func (n *Notifier) Notify(ctx context.Context, item admission.WorkItem, outcome Outcome, mc MailContext, rpt validation.Report, attachments []Attachment) error {
	mc.Project = n.project
	mc.Upload = item.UploadName
	mc.Collect = item.CollectName
	mc.Support = n.support
	if mc.Support == "" {
		mc.Support = "the data team"
	}

	recipients := item.Recipients()
	switch outcome {
	case OutcomeFail:
		mc.Summary = report.Summary(rpt)
	case OutcomeInternalError:
		mc.Detail = rpt.Detail()
		if n.support != "" {
			recipients = appendUnique(recipients, n.support)
		}
	case OutcomePass:
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	if outcome != OutcomeFail {
		attachments = nil
	}

	if len(recipients) == 0 {
		logging.WarnWithContext(logging.WithContext(ctx, n.logger), "no recipients for outcome mail", "mail_skipped",
			logging.String("outcome", string(outcome)),
			logging.String(logging.FieldErrorHint, "add mail addresses to the upload group members"),
		)
		return nil
	}

	var body bytes.Buffer
	if err := bodies.ExecuteTemplate(&body, string(outcome), mc); err != nil {
		return fmt.Errorf("render %s mail: %w", outcome, err)
	}
	msg := Message{
		To:          recipients,
		Subject:     n.subject(item, outcome),
		Body:        strings.TrimLeft(body.String(), "\n"),
		Attachments: attachments,
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s mail for %s: %w", outcome, item.UploadName, err)
	}
	logging.WithContext(ctx, n.logger).Info("outcome mail sent",
		logging.String("outcome", string(outcome)),
		logging.Int("recipients", len(recipients)),
	)
	return nil
}

func (n *Notifier) subject(item admission.WorkItem, outcome Outcome) string {
	family := n.titler.String(item.Family)
	switch outcome {
	case OutcomePass:
		return fmt.Sprintf("[%s] %s upload %s validated", n.project, family, item.UploadName)
	case OutcomeFail:
		return fmt.Sprintf("[%s] %s upload %s needs corrections", n.project, family, item.UploadName)
	default:
		return fmt.Sprintf("[%s] %s upload %s: internal error", n.project, family, item.UploadName)
	}
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, value) {
			return list
		}
	}
	return append(list, value)
}
