package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notifier forwards alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// slackNotifier posts alerts to a Slack incoming webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts to the given Slack webhook.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var conditionTitles = map[string]string{
	ConditionRepeatedDenied: "Repeated access denials",
	ConditionRejectedMoves:  "Rejected task transitions",
	ConditionReviewTooLong:  "Task stuck in review",
}

// Notify posts one message listing every alert. An empty slice sends
// nothing.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("encoding alert notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building alert notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending %d alert(s) to slack: %w", len(alerts), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Slack puts the failure reason, e.g. invalid_payload, in the body.
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(reason)))
	}
	return nil
}

// buildSlackMessage renders one section per alert, titled by its
// condition and tagged with the alert ID.
func buildSlackMessage(alerts []Alert) slackMessage {
	summary := fmt.Sprintf("TackleBox: %d access alert(s)", len(alerts))
	msg := slackMessage{
		Text:   summary,
		Blocks: []slackBlock{{Type: "header", Text: &slackText{Type: "plain_text", Text: summary}}},
	}

	for i, alert := range alerts {
		if i > 0 {
			msg.Blocks = append(msg.Blocks, slackBlock{Type: "divider"})
		}
		title, ok := conditionTitles[alert.Condition]
		if !ok {
			title = alert.Condition
		}
		msg.Blocks = append(msg.Blocks,
			slackBlock{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", title, alert.Message)},
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Severity*\n%s %s", severityEmoji(alert.Severity), strings.ToUpper(string(alert.Severity)))},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Alert*\n`%s`", alert.ID)},
				},
			},
			slackBlock{
				Type: "context",
				Elements: []slackText{{
					Type: "mrkdwn",
					Text: fmt.Sprintf("%s | triggered %s", alert.Condition, alert.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC")),
				}},
			},
		)
	}
	return msg
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "\u2754"
	}
}
