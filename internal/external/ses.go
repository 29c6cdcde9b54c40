package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"gopkg.in/gomail.v2"

	"giftclub/internal/types"
)

// SESAPI is the subset of the SES v2 client SESClient uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClient sends email through AWS SES v2. Messages are rendered to raw
// MIME so that the custom headers travel with them.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESClient creates an SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, configSetName string, logger *slog.Logger) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), configSetName, logger)
}

// NewSESClientWithAPI creates an SESClient over api.
func NewSESClientWithAPI(api SESAPI, configSetName string, logger *slog.Logger) *SESClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{api: api, configSetName: configSetName, logger: logger}
}

// Send implements notify.EmailSender.
//
// Error mapping:
//   - MessageRejected: email_blocked
//   - TooManyRequestsException: upstream_rate_limited
//   - SendingPausedException: upstream_unavailable
//   - anything else: upstream_email_provider_unavailable
func (s *SESClient) Send(ctx context.Context, msg types.EmailMessage) (string, error) {
	raw, err := RenderMIME(msg)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "render email", err)
	}

	input := &sesv2.SendEmailInput{
		Destination: &sestypes.Destination{ToAddresses: []string{msg.To}},
		Content: &sestypes.EmailContent{
			Raw: &sestypes.RawMessage{Data: raw},
		},
	}
	if s.configSetName != "" {
		input.ConfigurationSetName = aws.String(s.configSetName)
	}
	if msg.ReferenceID != "" {
		input.EmailTags = []sestypes.MessageTag{{
			Name:  aws.String("JobID"),
			Value: aws.String(msg.ReferenceID),
		}}
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

// RenderMIME renders msg as a plain-text RFC 5322 message. Non-ASCII
// subjects and display names are MIME-encoded. Header values that parse as
// an address (Reply-To) are re-encoded as addresses.
func RenderMIME(msg types.EmailMessage) ([]byte, error) {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	m.SetAddressHeader("From", msg.From, msg.FromName)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	for name, value := range msg.Headers {
		if name != "Message-ID" {
			if addr, err := mail.ParseAddress(value); err == nil {
				m.SetAddressHeader(name, addr.Address, addr.Name)
				continue
			}
		}
		m.SetHeader(name, value)
	}
	m.SetBody("text/plain", msg.BodyText)

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write mime message: %w", err)
	}
	return buf.Bytes(), nil
}

func mapSESError(err error) error {
	var rejected *sestypes.MessageRejected
	if errors.As(err, &rejected) {
		return types.NewAppError(types.ErrCodeEmailBlocked, "SES rejected message", err)
	}
	var throttled *sestypes.TooManyRequestsException
	if errors.As(err, &throttled) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SES rate limit exceeded", err)
	}
	var paused *sestypes.SendingPausedException
	if errors.As(err, &paused) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SES account sending paused", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("SES error: %v", err), err)
}

// LogEmailSender writes emails to the log instead of sending them. It is the
// local development transport.
type LogEmailSender struct {
	logger *slog.Logger
}

// NewLogEmailSender creates a LogEmailSender.
func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

// Send implements notify.EmailSender.
func (s *LogEmailSender) Send(ctx context.Context, msg types.EmailMessage) (string, error) {
	s.logger.InfoContext(ctx, "email suppressed (log transport)",
		"to", msg.ToName,
		"subject", msg.Subject,
		"message_id", msg.Headers["Message-ID"],
		"body_bytes", len(msg.BodyText),
	)
	return "log-" + msg.ReferenceID, nil
}
