package report

import (
	"context"
	"fmt"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/logger"
)

// DeliveryError wraps any failure to hand the report to the mail relay.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return "report delivery failed: " + e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// Reporter renders run results and mails them.
type Reporter struct {
	Mailer Mailer
	From   string
	To     []string
	Tag    string
	Logger logger.Logger
}

// Render returns the report text for r.
func (rp *Reporter) Render(r backup.RunResult) string {
	return Render(r)
}

// Deliver mails text with a subject derived from r. A nil Mailer means mail
// is disabled. Failures are logged and returned, they never alter r.
func (rp *Reporter) Deliver(ctx context.Context, r backup.RunResult, text string) error {
	log := rp.Logger
	if log == nil {
		log = logger.Nop()
	}
	if rp.Mailer == nil {
		log.Info("mail disabled, report not sent")
		return nil
	}

	msg := Message{
		From:    rp.From,
		To:      rp.To,
		Subject: Subject(rp.Tag, r),
		Body:    text,
		Date:    r.FinishedAt,
	}
	log.Info("sending report", "to", fmt.Sprint(rp.To), "subject", msg.Subject)
	if err := rp.Mailer.Send(ctx, msg); err != nil {
		derr := &DeliveryError{Err: err}
		log.Error("failed to send report", "error", derr.Error())
		return derr
	}
	log.Info("report sent")
	return nil
}
