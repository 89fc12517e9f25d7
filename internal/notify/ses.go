package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SendEmailAPI is the subset of the SES v2 client used by SESTarget.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds the configuration for an SESTarget.
type SESConfig struct {
	Name            string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
	Recipients      []string
}

// SESTarget emails the rendered notification through Amazon SES.
type SESTarget struct {
	name       string
	sender     string
	recipients []string
	client     SendEmailAPI
}

// NewSESTarget loads AWS configuration and creates an SESTarget.
func NewSESTarget(ctx context.Context, cfg SESConfig) (*SESTarget, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESTargetWithClient(cfg.Name, cfg.Sender, cfg.Recipients, sesv2.NewFromConfig(awsCfg)), nil
}

// NewSESTargetWithClient creates an SESTarget with a custom client, used for
// testing.
func NewSESTargetWithClient(name, sender string, recipients []string, client SendEmailAPI) *SESTarget {
	return &SESTarget{name: name, sender: sender, recipients: recipients, client: client}
}

// Name returns the target name.
func (s *SESTarget) Name() string {
	return s.name
}

// Notify sends one email with both renderings to every recipient.
func (s *SESTarget) Notify(ctx context.Context, n Notification) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.sender),
		Destination:      &types.Destination{ToAddresses: s.recipients},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(n.Rendered.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(n.Rendered.Text),
						Charset: aws.String("UTF-8"),
					},
					Html: &types.Content{
						Data:    aws.String(n.Rendered.HTML),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES send failed: %w", err)
	}
	return nil
}
