package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/medpractice-booking/internal/config"
	"github.com/wolfman30/medpractice-booking/internal/notify"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// LoadAWSConfig resolves region and credentials; static keys win over the default chain.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loaders...)
}

// BuildSESClient returns an SES v2 client, honoring AWS_ENDPOINT_OVERRIDE for local stacks.
func BuildSESClient(ctx context.Context, cfg *appconfig.Config) (*sesv2.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// BuildEmailSender picks the notification transport from EMAIL_PROVIDER. Without an explicit
// provider, SendGrid is used when a key is configured and the logging stub otherwise.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "stub":
		return notify.NewStubEmailSender(logger), nil

	case "ses":
		client, err := BuildSESClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("email provider configured", "provider", "ses", "region", cfg.AWSRegion)
		return notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger), nil

	case "sendgrid", "":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			logger.Info("email provider configured", "provider", "sendgrid")
			return sender, nil
		}
		if cfg.EmailProvider == "sendgrid" {
			return nil, fmt.Errorf("bootstrap: SENDGRID_API_KEY is required for the sendgrid provider")
		}
		logger.Warn("no email provider configured; notifications are logged only")
		return notify.NewStubEmailSender(logger), nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
}
