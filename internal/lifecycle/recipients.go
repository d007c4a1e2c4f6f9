package lifecycle

import (
	"fmt"
	"html"
	"strings"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
	"github.com/aevon-lab/spreadsheet-report/internal/mail"
)

const dateLayout = "2006-01-02"

// RecipientResolution decides what one entity sends and to whom.
type RecipientResolution interface {
	Key() storage.EntityKey
	Schedule() definition.ScheduleKind

	// Fingerprint identifies the definition content behind the entity.
	Fingerprint() string

	// Reports returns the reports to build, resolved against the current set.
	Reports(set *definition.Set) ([]definition.Report, error)

	// Message builds the mail carrying files for w.
	Message(reports []definition.Report, w raster.Window, files []string) mail.Message
}

// ReportRecipients sends one report to its own recipient list.
type ReportRecipients struct {
	Report definition.Report
}

func (r ReportRecipients) Key() storage.EntityKey {
	return storage.EntityKey{Kind: definition.KindReport, Name: r.Report.Name}
}

func (r ReportRecipients) Schedule() definition.ScheduleKind {
	return r.Report.Schedule
}

func (r ReportRecipients) Fingerprint() string {
	return r.Report.Fingerprint
}

func (r ReportRecipients) Reports(*definition.Set) ([]definition.Report, error) {
	return []definition.Report{r.Report}, nil
}

func (r ReportRecipients) Message(reports []definition.Report, w raster.Window, files []string) mail.Message {
	names := reportNames(reports)
	start, last := w.Start.Format(dateLayout), w.End.AddDate(0, 0, -1).Format(dateLayout)

	subject := r.Report.Subject
	if subject == "" {
		subject = fmt.Sprintf("Report (%s) from %s to %s", names, start, last)
	}
	content := r.Report.Content
	if content == "" {
		content = fmt.Sprintf("Hello,<br><br>attached is the report (%s) for the period from %s to %s.<br>"+
			"All further information is contained in the report.", html.EscapeString(names), start, last)
	}
	return mail.Message{
		Subject:     subject,
		Content:     content,
		Recipients:  r.Report.Recipients,
		BlindCopy:   r.Report.BlindCopy,
		Attachments: files,
	}
}

// UserRecipients bundles the reports named by a user into one mail.
type UserRecipients struct {
	User definition.User
}

func (u UserRecipients) Key() storage.EntityKey {
	return storage.EntityKey{Kind: definition.KindUser, Name: u.User.Name}
}

func (u UserRecipients) Schedule() definition.ScheduleKind {
	return u.User.Schedule
}

func (u UserRecipients) Fingerprint() string {
	return u.User.Fingerprint
}

func (u UserRecipients) Reports(set *definition.Set) ([]definition.Report, error) {
	found, missing := set.ResolveReports(u.User)
	if len(missing) > 0 {
		return nil, coreerrors.Configurationf("user %q references unknown reports %s", u.User.Name, strings.Join(missing, ", "))
	}
	if len(found) == 0 {
		return nil, coreerrors.Configurationf("user %q has no reports", u.User.Name)
	}
	return found, nil
}

func (u UserRecipients) Message(reports []definition.Report, w raster.Window, files []string) mail.Message {
	subject := u.User.Subject
	if subject == "" {
		if u.User.Schedule == definition.Yearly {
			subject = fmt.Sprintf("Report for %d", w.Start.Year())
		} else {
			subject = fmt.Sprintf("Report for %s %d", w.Start.Month(), w.Start.Year())
		}
	}
	content := u.User.Content
	if content == "" {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Hello %s,<br><br>here are your requested reports.<br><br><ul>", html.EscapeString(u.User.Name))
		for _, r := range reports {
			fmt.Fprintf(&sb, "<li>%s</li>", html.EscapeString(r.Name))
		}
		sb.WriteString("</ul>")
		content = sb.String()
	}
	return mail.Message{
		Subject:     subject,
		Content:     content,
		Recipients:  []string{u.User.Email},
		BlindCopy:   u.User.BlindCopy,
		Attachments: files,
	}
}

func reportNames(reports []definition.Report) string {
	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.Name
	}
	return strings.Join(names, ", ")
}
