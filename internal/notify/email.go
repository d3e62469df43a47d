package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/leadflow/pkg/logging"
)

// EmailSender delivers one plain-text lead summary.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a lead summary addressed to one sales recipient. ReplyTo
// is the lead's own address so sales can answer directly.
type EmailMessage struct {
	To        string
	Subject   string
	Body      string
	ReplyTo   string
	SessionID string
	Tier      string
}

// ErrSenderNotConfigured is returned by sender constructors missing a
// credential or sender address.
var ErrSenderNotConfigured = errors.New("notify: email sender not configured")

const defaultFromName = "Leadflow"

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends lead summaries through the SendGrid v3 API.
type SendGridSender struct {
	send      func(ctx context.Context, m *mail.SGMailV3) (int, string, error)
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("%w: sendgrid needs an API key and from address", ErrSenderNotConfigured)
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	return newSendGridSender(cfg, logger, func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
		resp, err := client.SendWithContext(ctx, m)
		if err != nil {
			return 0, "", err
		}
		return resp.StatusCode, resp.Body, nil
	}), nil
}

func newSendGridSender(cfg SendGridConfig, logger *logging.Logger, send func(context.Context, *mail.SGMailV3) (int, string, error)) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{send: send, fromEmail: cfg.FromEmail, fromName: cfg.FromName, logger: logger}
}

// buildMail tags the message with the session and tier so bounces and
// replies can be traced back to the conversation.
func (s *SendGridSender) buildMail(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewSingleEmailPlainText(mail.NewEmail(s.fromName, s.fromEmail), msg.Subject, mail.NewEmail("", msg.To), msg.Body)
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	m.AddCategories("qualified-lead")
	if msg.Tier != "" {
		m.AddCategories("tier-" + msg.Tier)
	}
	if msg.SessionID != "" {
		m.SetCustomArg("session_id", msg.SessionID)
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	status, body, err := s.send(ctx, s.buildMail(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if status >= 400 {
		s.logger.Error("sendgrid rejected lead email", "status", status, "body", body, "session_id", msg.SessionID)
		return fmt.Errorf("notify: sendgrid returned status %d", status)
	}
	s.logger.Debug("lead email sent via sendgrid", "to", msg.To, "session_id", msg.SessionID, "status", status)
	return nil
}

// StubEmailSender logs instead of sending. NOTIFY_PROVIDER=stub.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.InfoContext(ctx, "stub email sender: lead email not sent",
		"to", msg.To,
		"subject", msg.Subject,
		"session_id", msg.SessionID,
	)
	return nil
}
