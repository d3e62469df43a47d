package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/leadflow/pkg/logging"
)

// SESSendAPI is the subset of the SESv2 client used here.
type SESSendAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	FromEmail string
	FromName  string
	// ConfigurationSet routes delivery events; optional.
	ConfigurationSet string
}

// SESSender sends lead summaries through AWS SES v2.
type SESSender struct {
	client SESSendAPI
	from   string
	cfgSet string
	logger *logging.Logger
}

// SES message tag values allow only ASCII letters, digits, '_' and '-'.
var sesTagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

func NewSESSender(client SESSendAPI, cfg SESConfig, logger *logging.Logger) (*SESSender, error) {
	if client == nil || strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("%w: ses needs a client and from address", ErrSenderNotConfigured)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SESSender{
		client: client,
		from:   fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
		cfgSet: cfg.ConfigurationSet,
		logger: logger,
	}, nil
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: sesTags(msg),
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.cfgSet != "" {
		input.ConfigurationSetName = aws.String(s.cfgSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: ses send: %w", err)
	}
	s.logger.Debug("lead email sent via ses", "to", msg.To, "session_id", msg.SessionID, "message_id", aws.ToString(out.MessageId))
	return nil
}

func sesTags(msg EmailMessage) []types.MessageTag {
	var tags []types.MessageTag
	add := func(name, value string) {
		if value = sesTagUnsafe.ReplaceAllString(value, "_"); value != "" {
			tags = append(tags, types.MessageTag{Name: aws.String(name), Value: aws.String(value)})
		}
	}
	add("session_id", msg.SessionID)
	add("tier", msg.Tier)
	return tags
}

var (
	_ EmailSender = (*SESSender)(nil)
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
