package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/leadflow/pkg/logging"
)

func TestNewSendGridSenderRequiresCredentials(t *testing.T) {
	for _, cfg := range []SendGridConfig{
		{FromEmail: "bot@leadflow.example"},
		{APIKey: "key"},
	} {
		if _, err := NewSendGridSender(cfg, nil); !errors.Is(err, ErrSenderNotConfigured) {
			t.Fatalf("%+v: expected ErrSenderNotConfigured, got %v", cfg, err)
		}
	}
	s, err := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "bot@leadflow.example"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.fromName != defaultFromName {
		t.Errorf("expected default from name, got %q", s.fromName)
	}
}

func TestSendGridSenderBuildsTaggedPlainTextMail(t *testing.T) {
	var got *mail.SGMailV3
	s := newSendGridSender(SendGridConfig{FromEmail: "bot@leadflow.example", FromName: "Leads"}, logging.Discard(),
		func(_ context.Context, m *mail.SGMailV3) (int, string, error) {
			got = m
			return 202, "", nil
		})

	msg := RenderEmail(sampleRecord())
	msg.To = "sales@corp.example"
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.From.Address != "bot@leadflow.example" || got.From.Name != "Leads" {
		t.Fatalf("unexpected from %+v", got.From)
	}
	if got.ReplyTo == nil || got.ReplyTo.Address != "ana@bank.example" {
		t.Fatalf("expected reply-to the lead, got %+v", got.ReplyTo)
	}
	if len(got.Content) != 1 || got.Content[0].Type != "text/plain" {
		t.Fatalf("expected a single plain-text part, got %+v", got.Content)
	}
	if len(got.Categories) != 2 || got.Categories[1] != "tier-hot" {
		t.Fatalf("unexpected categories %v", got.Categories)
	}
	if got.CustomArgs["session_id"] != "sess-42" {
		t.Fatalf("expected session custom arg, got %v", got.CustomArgs)
	}
}

func TestSendGridSenderErrorStatus(t *testing.T) {
	s := newSendGridSender(SendGridConfig{FromEmail: "bot@leadflow.example"}, logging.Discard(),
		func(context.Context, *mail.SGMailV3) (int, string, error) { return 401, "unauthorized", nil })
	if err := s.Send(context.Background(), EmailMessage{To: "x@y.z"}); err == nil {
		t.Fatal("expected error for 4xx status")
	}

	s = newSendGridSender(SendGridConfig{FromEmail: "bot@leadflow.example"}, logging.Discard(),
		func(context.Context, *mail.SGMailV3) (int, string, error) { return 0, "", errors.New("dial tcp") })
	if err := s.Send(context.Background(), EmailMessage{To: "x@y.z"}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestNewSESSenderRequiresClientAndSender(t *testing.T) {
	if _, err := NewSESSender(nil, SESConfig{FromEmail: "a@b.c"}, nil); !errors.Is(err, ErrSenderNotConfigured) {
		t.Fatalf("expected ErrSenderNotConfigured, got %v", err)
	}
	if _, err := NewSESSender(&stubSES{}, SESConfig{}, nil); !errors.Is(err, ErrSenderNotConfigured) {
		t.Fatalf("expected ErrSenderNotConfigured, got %v", err)
	}
}

func TestSESTagsAreSanitised(t *testing.T) {
	tags := sesTags(EmailMessage{SessionID: "web:abc/123", Tier: ""})
	if len(tags) != 1 || *tags[0].Value != "web_abc_123" {
		t.Fatalf("unexpected tags %+v", tags)
	}
}

func TestStubEmailSender(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "a@b.c", Subject: "s"}); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}
