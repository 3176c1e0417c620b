// internal/common/alerting/aws.go
package alerting

import (
	"context"
	"fmt"

	"extension-recovery/internal/recovery"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// LoadAWSConfig loads the default credential chain for region.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return cfg, nil
}

// SNSAlerter publishes escalations to an SNS topic.
type SNSAlerter struct {
	client   snsAPI
	topicARN string
}

func NewSNSAlerter(cfg aws.Config, topicARN string) *SNSAlerter {
	return &SNSAlerter{client: sns.NewFromConfig(cfg), topicARN: topicARN}
}

func (s *SNSAlerter) Alert(ctx context.Context, e *recovery.Escalation) error {
	msg, err := body(e)
	if err != nil {
		return err
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(subject(e)),
		Message:  aws.String(msg),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"error_code": {DataType: aws.String("String"), StringValue: aws.String(string(e.Code))},
			"severity":   {DataType: aws.String("String"), StringValue: aws.String(string(e.Severity))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

// SESAlerter emails escalations to the on-call administrators.
type SESAlerter struct {
	client sesAPI
	from   string
	to     []string
}

func NewSESAlerter(cfg aws.Config, from string, to []string) *SESAlerter {
	return &SESAlerter{client: ses.NewFromConfig(cfg), from: from, to: to}
}

func (s *SESAlerter) Alert(ctx context.Context, e *recovery.Escalation) error {
	msg, err := body(e)
	if err != nil {
		return err
	}

	_, err = s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &sestypes.Destination{ToAddresses: s.to},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject(e)), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(msg), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}
