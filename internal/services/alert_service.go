package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AlertService sends security notifications to account owners. Delivery is
// best effort: a failed alert never fails the operation that triggered it.
type AlertService interface {
	SendLockoutAlert(ctx context.Context, email string, unlockAt time.Time) error
	SendTwoFactorAlert(ctx context.Context, email, event string) error
}

// AWSSESAlertService sends alerts using AWS SES
type AWSSESAlertService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESAlertService creates a new AWS SES alert service
func NewAWSSESAlertService(region, fromAddress string, logger *slog.Logger) (*AWSSESAlertService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlertService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendLockoutAlert notifies the account owner that repeated failed sign-in
// attempts locked their account.
func (s *AWSSESAlertService) SendLockoutAlert(ctx context.Context, email string, unlockAt time.Time) error {
	textBody := fmt.Sprintf(`Your account was temporarily locked

We noticed several failed sign-in attempts on your account, so we locked it as a precaution.

You can sign in again after %s. No action is needed if this was you.

If you don't recognize these attempts, reset your password once the lock lifts and consider enabling two-factor authentication.

This is an automated message. Please do not reply to this email.
`, unlockAt.UTC().Format(time.RFC1123))

	return s.send(ctx, email, "Your account was temporarily locked", textBody)
}

// SendTwoFactorAlert notifies the account owner about a two-factor change.
// event is a short phrase like "enabled", "disabled", or "backup codes regenerated".
func (s *AWSSESAlertService) SendTwoFactorAlert(ctx context.Context, email, event string) error {
	textBody := fmt.Sprintf(`Two-factor authentication change

Two-factor authentication on your account was just %s.

If you made this change, no action is needed.

If you did not, your account may be compromised. Reset your password immediately and contact support.

This is an automated message. Please do not reply to this email.
`, event)

	return s.send(ctx, email, "Two-factor authentication "+event, textBody)
}

func (s *AWSSESAlertService) send(ctx context.Context, email, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security alert via SES",
			slog.String("email", email),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	s.logger.Info("security alert sent",
		slog.String("email", email),
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}

// NoopAlertService drops all alerts. Used when email delivery is disabled.
type NoopAlertService struct{}

func (NoopAlertService) SendLockoutAlert(context.Context, string, time.Time) error { return nil }
func (NoopAlertService) SendTwoFactorAlert(context.Context, string, string) error  { return nil }
