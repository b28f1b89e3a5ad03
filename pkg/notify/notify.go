package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/promtec/orientation-api/internal/dto"
	"github.com/promtec/orientation-api/pkg/config"
)

// SMTPNotifier delivers confirmation and summary emails through a plain SMTP
// relay.
type SMTPNotifier struct {
	cfg    config.SMTPConfig
	org    config.OrganizationConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

// NewSMTPNotifier constructs the notifier.
func NewSMTPNotifier(cfg config.SMTPConfig, org config.OrganizationConfig, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPNotifier{cfg: cfg, org: org, send: smtp.SendMail, logger: logger}
}

// SendConfirmation mails a school's contact users the confirmed student list
// for one slot.
func (n *SMTPNotifier) SendConfirmation(ctx context.Context, confirmation dto.SchoolConfirmation, summary dto.ConfirmationSummary) error {
	recipients := make([]string, 0, len(confirmation.Recipients))
	for _, user := range confirmation.Recipients {
		recipients = append(recipients, user.Email)
	}
	if len(recipients) == 0 {
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "The following students are confirmed for %s (%s, %s):\r\n\r\n",
		summary.Slot.Date.Format("02.01.2006"), summary.Slot.TimePeriod, summary.Slot.Department)
	for _, student := range confirmation.Students {
		fmt.Fprintf(&body, "- %s %s (%s)\r\n", student.FirstName, student.LastName, student.SchoolClass)
	}
	n.appendSignature(&body)

	subject := fmt.Sprintf("Participation confirmed: %s", summary.Slot.Date.Format("02.01.2006"))
	return n.deliver(ctx, recipients, subject, body.String())
}

// SendEnrollmentSummary mails a user a digest of their recent enrollments.
func (n *SMTPNotifier) SendEnrollmentSummary(ctx context.Context, summary dto.EnrollmentSummary) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\r\n\r\nyou registered the following students:\r\n\r\n", summary.User.FullName())
	for _, e := range summary.Enrollments {
		state := "enrolled"
		if e.WaitingList {
			state = "waiting list"
		}
		fmt.Fprintf(&body, "- %s %s (%s): %s\r\n", e.Student.FirstName, e.Student.LastName, e.Student.SchoolClass, state)
	}
	n.appendSignature(&body)

	return n.deliver(ctx, []string{summary.User.Email}, "Your enrollment summary", body.String())
}

func (n *SMTPNotifier) appendSignature(body *strings.Builder) {
	fmt.Fprintf(body, "\r\nKind regards\r\n%s %s\r\nTel. %s\r\n%s\r\n",
		n.org.ContactFirstName, n.org.ContactLastName, n.org.Telephone, n.org.Email)
}

func (n *SMTPNotifier) deliver(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		n.cfg.From, strings.Join(to, ", "), subject, body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := n.send(addr, auth, n.cfg.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	n.logger.Debug("mail delivered", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// LogNotifier writes notifications to the log instead of delivering them.
// Used when no SMTP relay is configured, so development setups still see
// what would have gone out.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// SendConfirmation logs the confirmation instead of mailing it.
func (n *LogNotifier) SendConfirmation(ctx context.Context, confirmation dto.SchoolConfirmation, summary dto.ConfirmationSummary) error {
	n.logger.Info("confirmation notification",
		zap.String("slot_id", summary.Slot.ID),
		zap.String("school", confirmation.SchoolName),
		zap.Int("students", len(confirmation.Students)),
		zap.Int("recipients", len(confirmation.Recipients)))
	return nil
}

// SendEnrollmentSummary logs the summary instead of mailing it.
func (n *LogNotifier) SendEnrollmentSummary(ctx context.Context, summary dto.EnrollmentSummary) error {
	n.logger.Info("enrollment summary notification",
		zap.String("user_id", summary.User.ID),
		zap.Int("enrollments", len(summary.Enrollments)))
	return nil
}
