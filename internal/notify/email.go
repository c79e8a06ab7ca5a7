// internal/notify/email.go
package notify

import (
	"context"
	"fmt"

	appconfig "apply-engine/internal/common/config"
	"apply-engine/internal/common/errors"
	"apply-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the slice of the SES API the notifier uses; tests mock it.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailNotifier delivers outcome emails through SES.
type EmailNotifier struct {
	client SESService
	from   string
	to     string
}

func NewEmailNotifier(ctx context.Context, cfg appconfig.EmailConfig) (*EmailNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &EmailNotifier{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.From,
		to:     cfg.To,
	}, nil
}

// NewEmailNotifierWithClient wires a pre-built SES client, for tests.
func NewEmailNotifierWithClient(client SESService, from, to string) *EmailNotifier {
	return &EmailNotifier{client: client, from: from, to: to}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Notify(ctx context.Context, job *models.ApplicationJob, outcome models.Outcome, reason string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{n.to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject(job, outcome))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body(job, outcome, reason))},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return errors.NewNotificationSendFailedError("email", err)
	}
	return nil
}
