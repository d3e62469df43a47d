package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Record is the finalized hand-off produced when a conversation closes.
type Record struct {
	SessionID              string                `json:"sessionId"`
	CorrelationID          string                `json:"correlationId"`
	CustomerInfo           session.CustomerInfo  `json:"customerInfo"`
	Qualification          session.Qualification `json:"qualification"`
	ConversationHighlights []string              `json:"conversationHighlights"`
	CreatedAt              time.Time             `json:"createdAt"`
}

// Notifier delivers a hand-off record to the sales side.
type Notifier interface {
	Notify(ctx context.Context, rec Record) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, rec Record) error

func (f NotifierFunc) Notify(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Chain fans a record out to several notifiers. Every notifier runs; the
// failures are joined. When a session's record is retried, notifiers that
// already took it are skipped.
type Chain struct {
	notifiers []Notifier
	logger    *logging.Logger
	sent      *deliveryLog
}

// NewChain skips nil notifiers.
func NewChain(logger *logging.Logger, notifiers ...Notifier) *Chain {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Chain{logger: logger, sent: newDeliveryLog()}
	for _, n := range notifiers {
		if n != nil {
			c.notifiers = append(c.notifiers, n)
		}
	}
	return c
}

// Len is the number of wired notifiers.
func (c *Chain) Len() int { return len(c.notifiers) }

func (c *Chain) Notify(ctx context.Context, rec Record) error {
	var (
		errs []error
		ok   []string
	)
	for i, n := range c.notifiers {
		target := strconv.Itoa(i)
		if c.sent.delivered(rec.SessionID, target) {
			continue
		}
		if err := n.Notify(ctx, rec); err != nil {
			c.logger.Error("notify: notifier failed", "error", err, "session_id", rec.SessionID, "notifier", fmt.Sprintf("%T", n))
			errs = append(errs, err)
			continue
		}
		ok = append(ok, target)
	}
	if len(errs) == 0 {
		c.sent.forget(rec.SessionID)
		return nil
	}
	for _, target := range ok {
		c.sent.mark(rec.SessionID, target)
	}
	return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
}

// EmailNotifier emails a lead summary to the sales inbox.
type EmailNotifier struct {
	sender     EmailSender
	recipients []string
	logger     *logging.Logger
	sent       *deliveryLog
}

// NewEmailNotifier sends to each recipient; blank entries are dropped.
func NewEmailNotifier(sender EmailSender, recipients []string, logger *logging.Logger) *EmailNotifier {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &EmailNotifier{sender: sender, recipients: to, logger: logger, sent: newDeliveryLog()}
}

func (n *EmailNotifier) Notify(ctx context.Context, rec Record) error {
	if len(n.recipients) == 0 {
		n.logger.Debug("notify: no email recipients configured, skipping", "session_id", rec.SessionID)
		return nil
	}
	msg := RenderEmail(rec)
	var (
		errs []error
		ok   []string
	)
	for _, to := range n.recipients {
		if n.sent.delivered(rec.SessionID, to) {
			continue
		}
		msg.To = to
		if err := n.sender.Send(ctx, msg); err != nil {
			n.logger.Error("notify: failed to send email", "error", err, "to", to)
			errs = append(errs, err)
			continue
		}
		ok = append(ok, to)
		n.logger.Info("notify: lead email sent", "to", to, "session_id", rec.SessionID, "tier", rec.Qualification.Tier)
	}
	if len(errs) == 0 {
		n.sent.forget(rec.SessionID)
		return nil
	}
	for _, to := range ok {
		n.sent.mark(rec.SessionID, to)
	}
	return errors.Join(errs...)
}

// RenderEmail formats the plain-text lead summary. To is left empty.
func RenderEmail(rec Record) EmailMessage {
	info := rec.CustomerInfo
	q := rec.Qualification
	name := displayName(info)

	subject := fmt.Sprintf("[%s] New qualified lead: %s (%d/100)", strings.ToUpper(string(q.Tier)), name, q.TotalScore)

	var body strings.Builder
	fmt.Fprintf(&body, "%s scored %d/100 (%s). Next action: %s.\n\n", name, q.TotalScore, q.Tier, q.NextAction)
	writeField(&body, "Email", info.Email)
	writeField(&body, "Phone", info.Phone)
	writeField(&body, "Company", info.Company)
	writeField(&body, "Industry", info.Industry)
	writeField(&body, "Role", firstNonEmpty(info.Role, q.Authority.Title))
	fmt.Fprintf(&body, "\nBudget: %d/30 (%s)\nAuthority: %d/25 (%s)\nNeed: %d/25\nTimeline: %d/20 (%s)\n",
		q.Budget.Score, q.Budget.Status, q.Authority.Score, q.Authority.Role, q.Need.Score, q.Timeline.Score, q.Timeline.Status)
	if len(rec.ConversationHighlights) > 0 {
		body.WriteString("\nHighlights:\n")
		for _, h := range rec.ConversationHighlights {
			fmt.Fprintf(&body, "- %s\n", truncate(h, 280))
		}
	}
	fmt.Fprintf(&body, "\nSession: %s\n", rec.SessionID)

	return EmailMessage{
		Subject:   subject,
		Body:      body.String(),
		ReplyTo:   info.Email,
		SessionID: rec.SessionID,
		Tier:      string(q.Tier),
	}
}

// LeadStoreNotifier persists the record as a qualified lead.
type LeadStoreNotifier struct {
	repo leads.Repository
}

func NewLeadStoreNotifier(repo leads.Repository) *LeadStoreNotifier {
	if repo == nil {
		panic("notify: leads repository cannot be nil")
	}
	return &LeadStoreNotifier{repo: repo}
}

func (n *LeadStoreNotifier) Notify(ctx context.Context, rec Record) error {
	q := rec.Qualification
	lead := &leads.QualifiedLead{
		SessionID:     rec.SessionID,
		CorrelationID: rec.CorrelationID,
		Name:          rec.CustomerInfo.Name,
		Email:         rec.CustomerInfo.Email,
		Phone:         rec.CustomerInfo.Phone,
		Company:       rec.CustomerInfo.Company,
		Industry:      rec.CustomerInfo.Industry,
		Role:          firstNonEmpty(rec.CustomerInfo.Role, q.Authority.Title),
		TotalScore:    q.TotalScore,
		Tier:          q.Tier,
		IsQualified:   q.IsQualified,
		NextAction:    q.NextAction,
		Qualification: &q,
		Highlights:    rec.ConversationHighlights,
	}
	if err := n.repo.Save(ctx, lead); err != nil {
		return fmt.Errorf("notify: save lead: %w", err)
	}
	return nil
}

// LogNotifier only logs; used when no delivery provider is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, rec Record) error {
	n.logger.WithSession(rec.SessionID, rec.CorrelationID).InfoContext(ctx, "notify: lead ready for hand-off",
		"tier", rec.Qualification.Tier,
		"total_score", rec.Qualification.TotalScore,
		"email", rec.CustomerInfo.Email,
	)
	return nil
}

func displayName(info session.CustomerInfo) string {
	switch {
	case info.Name != "" && info.Company != "":
		return fmt.Sprintf("%s (%s)", info.Name, info.Company)
	case info.Name != "":
		return info.Name
	case info.Company != "":
		return info.Company
	case info.Email != "":
		return info.Email
	default:
		return "Unknown lead"
	}
}

func writeField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
