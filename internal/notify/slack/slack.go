// Package slack sends alert notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/uaso/internal/classify"
	"github.com/linnemanlabs/uaso/internal/notify"
)

const (
	maxHeaderLen  = 150 // slack header block limit
	maxSectionLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier posts notifications to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
	now        func() time.Time
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Notify posts the subject and body to the configured webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	if n.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(buildMessage(subject, body, n.now()))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info(ctx, "slack notification sent", "subject", subject)
	return nil
}

// buildMessage splits body at the alert details header so the summary and
// the raw alert JSON render as separate sections.
func buildMessage(subject, body string, at time.Time) map[string]any {
	summary, details, _ := strings.Cut(body, notify.DetailsHeader)
	return map[string]any{
		"text": subject,
		"blocks": []map[string]any{
			headerBlock(subject),
			{"type": "divider"},
			summaryBlock(summary),
			{"type": "divider"},
			detailsBlock(details),
			{"type": "divider"},
			contextBlock(at),
		},
	}
}

func headerBlock(subject string) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(subjectEmoji(subject)+" "+subject, maxHeaderLen),
		},
	}
}

func summaryBlock(summary string) map[string]any {
	text := truncate(strings.TrimSpace(summary), maxSectionLen)
	if text == "" {
		text = "_No summary available._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func detailsBlock(details string) map[string]any {
	const fence = "```"
	text := "_No alert details._"
	if d := strings.TrimSpace(details); d != "" {
		text = fence + truncate(d, maxSectionLen-2*len(fence)) + fence
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func contextBlock(at time.Time) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("uaso • %s", at.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

// subjectEmoji picks a marker from the action label in the subject.
func subjectEmoji(subject string) string {
	switch {
	case strings.Contains(subject, notify.Label(classify.ActionHumanRequired)):
		return "\U0001f534" // red circle
	case strings.Contains(subject, notify.Label(classify.ActionAIHandled)),
		strings.Contains(subject, notify.Label(classify.ActionFalsePositive)):
		return "\U0001f7e2" // green circle
	default:
		return "\U0001f7e1" // yellow circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
