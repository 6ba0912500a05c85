// Package sns publishes alert notifications to an Amazon SNS topic.
package sns

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// maxSubjectLen is the SNS limit on Subject.
const maxSubjectLen = 100

// API is the subset of the SNS client used by Notifier.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier publishes each notification as one SNS message.
type Notifier struct {
	api      API
	topicARN string
	logger   log.Logger
}

// New returns a Notifier publishing to topicARN.
func New(api API, topicARN string, logger log.Logger) *Notifier {
	if api == nil {
		panic(xerrors.New("sns client is required"))
	}
	if topicARN == "" {
		panic(xerrors.New("sns topic arn is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{api: api, topicARN: topicARN, logger: logger}
}

// Notify publishes body with subject, truncated to what SNS accepts.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	out, err := n.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subjectFor(subject)),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sns: publish: %w", err)
	}
	n.logger.Info(ctx, "sns notification sent", "message_id", aws.ToString(out.MessageId))
	return nil
}

// subjectFor makes subject acceptable to SNS: printable ASCII only, no line
// breaks, at most maxSubjectLen bytes. Whitespace becomes a space and any
// other character becomes '?'.
func subjectFor(subject string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 0x20 && r <= 0x7e:
			return r
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		default:
			return '?'
		}
	}, subject)
	s = strings.TrimSpace(s)
	if len(s) > maxSubjectLen {
		s = strings.TrimSpace(s[:maxSubjectLen])
	}
	if s == "" {
		s = "UASO Alert"
	}
	return s
}
