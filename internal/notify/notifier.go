// internal/notify/notifier.go

// Package notify delivers final-decision notifications over SES email and
// SNS SMS. Delivery is best effort: a failed send is logged and counted,
// never surfaced to the pipeline.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"eligibility-workers/internal/common/config"
	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	config    config.NotificationConfig
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

// NewNotifier builds AWS clients only when at least one channel is enabled.
func NewNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
	if !cfg.Email.Enabled && !cfg.SMS.Enabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	n.sesClient = ses.NewFromConfig(awsCfg)
	n.snsClient = sns.NewFromConfig(awsCfg)
	return n, nil
}

// NotifyDecision tells the applicant the outcome of a completed run.
func (n *Notifier) NotifyDecision(ctx context.Context, app *models.Application, decision models.DecisionLabel, rationale string) {
	subject, body := renderDecision(app, decision, rationale)

	if n.config.Email.Enabled && n.sesClient != nil && app.Applicant.Email != "" {
		if err := n.sendEmail(ctx, app.Applicant.Email, subject, body); err != nil {
			n.logger.Error("decision email failed", map[string]interface{}{
				"applicationId": app.ApplicationID,
				"error":         commonerrors.NewNotificationSendFailedError("email", err).Error(),
			})
		}
	}

	// SMS is reserved for outcomes that need the applicant's attention.
	if n.config.SMS.Enabled && n.snsClient != nil && app.Applicant.Phone != "" && decision != models.DecisionApprove {
		if err := n.sendSMS(ctx, app.Applicant.Phone, body); err != nil {
			n.logger.Error("decision SMS failed", map[string]interface{}{
				"applicationId": app.ApplicationID,
				"error":         commonerrors.NewNotificationSendFailedError("sms", err).Error(),
			})
		}
	}
}

func renderDecision(app *models.Application, decision models.DecisionLabel, rationale string) (string, string) {
	name := app.Applicant.FullName
	if name == "" {
		name = "Applicant"
	}

	var subject, lede string
	switch decision {
	case models.DecisionApprove:
		subject = "Your social support application has been approved"
		lede = "Good news: your application has been approved."
	case models.DecisionReview:
		subject = "Your social support application needs review"
		lede = "Your application is under review. We may ask you a clarification question in the application chat."
	default:
		subject = "Update on your social support application"
		lede = "Your application could not be approved at this time."
	}

	body := fmt.Sprintf("Dear %s,\n\n%s\n\n%s\n\nApplication reference: %s\n",
		name, lede, rationale, app.ApplicationID)
	return subject, body
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if n.config.SMS.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.config.SMS.SenderID),
			},
		}
	}
	_, err := n.snsClient.Publish(ctx, input)
	return err
}
