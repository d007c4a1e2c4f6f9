// Package mail delivers report files through the platform mail service and
// follows each job to a terminal state.
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/platform"
	"github.com/go-playground/validator/v10"
)

// State of a delivery.
type State string

const (
	StateIdle             State = "IDLE"
	StateCreating         State = "CREATING"
	StateSending          State = "SENDING"
	StateSendSuccessfully State = "SEND_SUCCESSFULLY"
	StateCanceled         State = "CANCELED"
)

// RetryPolicy bounds the status poll: at most MaxAttempts polls, Interval apart.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 30, Interval: 20 * time.Second}
}

// contentTypes maps attachment extensions to the type sent with the file.
var contentTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/msexcel",
	".csv":  "text/csv",
	".txt":  "text/plain",
}

// Message is one mail to send. Attachments are file paths.
type Message struct {
	Subject     string
	Content     string
	Recipients  []string
	BlindCopy   []string
	Attachments []string
}

// Outcome is the terminal result of one Send.
type Outcome struct {
	JobID       string
	State       State
	Polls       int
	CompletedAt time.Time
}

// Delivery is the mail state machine of one entity. A Send always starts a
// fresh job; terminal jobs are never resumed.
type Delivery struct {
	mailer   platform.Mailer
	policy   RetryPolicy
	validate *validator.Validate
	now      func() time.Time

	mu    sync.Mutex
	state State
}

func NewDelivery(mailer platform.Mailer, policy RetryPolicy) *Delivery {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if policy.Interval < 0 {
		policy.Interval = 0
	}
	return &Delivery{
		mailer:   mailer,
		policy:   policy,
		validate: validator.New(),
		now:      time.Now,
		state:    StateIdle,
	}
}

// State returns the current state.
func (d *Delivery) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Delivery) transition(to State, log *slog.Logger) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()
	log.Debug("[Mail] State transition", "from", from, "to", to)
}

// Send validates msg, submits it and polls until the job is sent, canceled or
// the retry policy is exhausted. A nil error means SEND_SUCCESSFULLY; only
// then may the caller commit the schedule record. The machine is back in IDLE
// when Send returns.
func (d *Delivery) Send(ctx context.Context, msg Message) (Outcome, error) {
	log := slog.With("subject", msg.Subject)
	out, err := d.send(ctx, msg, log)
	if err != nil {
		out.State = StateCanceled
		d.transition(StateCanceled, log)
		log.Error("[Mail] Delivery canceled", "job_id", out.JobID, "polls", out.Polls, "error", err)
	}
	d.transition(StateIdle, log)
	return out, err
}

func (d *Delivery) send(ctx context.Context, msg Message, log *slog.Logger) (Outcome, error) {
	var out Outcome

	d.transition(StateCreating, log)
	if err := d.validateAddresses(msg); err != nil {
		return out, err
	}
	attachments, err := EncodeAttachments(msg.Attachments)
	if err != nil {
		return out, err
	}

	id, err := d.mailer.Submit(ctx, platform.MailJob{
		Subject:     msg.Subject,
		Content:     msg.Content,
		Recipients:  msg.Recipients,
		BlindCopy:   msg.BlindCopy,
		Attachments: attachments,
	})
	if err != nil {
		return out, fmt.Errorf("submitting mail: %w", err)
	}
	out.JobID = id
	log = log.With("job_id", id)
	log.Info("[Mail] Mail submitted", "recipients", len(msg.Recipients), "attachments", len(attachments))

	d.transition(StateSending, log)
	for out.Polls < d.policy.MaxAttempts {
		out.Polls++
		status, err := d.mailer.PollStatus(ctx, id)
		switch {
		case err != nil:
			log.Warn("[Mail] Status poll failed", "attempt", out.Polls, "error", err)
		case status == platform.MailStatusScheduled:
			log.Info("[Mail] Mail scheduled", "attempt", out.Polls)
		case status == platform.MailStatusSent:
			out.State = StateSendSuccessfully
			out.CompletedAt = d.now()
			d.transition(StateSendSuccessfully, log)
			log.Info("[Mail] Mail sent", "attempt", out.Polls)
			return out, nil
		default:
			return out, fmt.Errorf("%w: mail %s reported status %q", coreerrors.ErrDeliveryCanceled, id, status)
		}

		if out.Polls == d.policy.MaxAttempts {
			break
		}
		if err := sleep(ctx, d.policy.Interval); err != nil {
			return out, fmt.Errorf("%w: %v", coreerrors.ErrDeliveryCanceled, err)
		}
	}
	return out, fmt.Errorf("%w: mail %s not sent after %d polls", coreerrors.ErrDeliveryTimeout, id, out.Polls)
}

func (d *Delivery) validateAddresses(msg Message) error {
	if len(msg.Recipients) == 0 {
		return coreerrors.Validationf("no recipients")
	}
	for _, addr := range append(append([]string(nil), msg.Recipients...), msg.BlindCopy...) {
		if err := d.validate.Var(addr, "required,email"); err != nil {
			return coreerrors.Validationf("invalid address %q", addr)
		}
	}
	return nil
}

// EncodeAttachments reads every file and encodes it as base64. An extension
// without a known content type fails the whole set.
func EncodeAttachments(paths []string) ([]platform.MailAttachment, error) {
	out := make([]platform.MailAttachment, 0, len(paths))
	for _, path := range paths {
		ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil, coreerrors.Validationf("unsupported attachment type %q", filepath.Base(path))
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		out = append(out, platform.MailAttachment{
			Name:        filepath.Base(path),
			ContentType: ct,
			Encoding:    "base64",
			Content:     base64.StdEncoding.EncodeToString(raw),
		})
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
