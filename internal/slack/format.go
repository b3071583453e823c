package slack

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// TextObject is a Block Kit text object.
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Button is a Block Kit button element.
type Button struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text"`
	ActionID string      `json:"action_id"`
	Value    string      `json:"value"`
	Style    string      `json:"style,omitempty"`
}

// Block is a Block Kit layout block. Elements holds buttons for action
// blocks and text objects for context blocks.
type Block struct {
	Type     string        `json:"type"`
	Text     *TextObject   `json:"text,omitempty"`
	Elements []interface{} `json:"elements,omitempty"`
}

// Feedback button action IDs carried in interaction payloads.
const (
	ActionFeedbackPositive = "feedback_positive"
	ActionFeedbackNegative = "feedback_negative"
)

func mrkdwn(text string) *TextObject {
	return &TextObject{Type: "mrkdwn", Text: text}
}

// FormatLeadResult renders a scored lead as the notification posted into
// Slack: headline with score, summary bullets, quoted suggested reply, and
// feedback buttons keyed to the lead ID.
func FormatLeadResult(label string, score float64, summary []string, suggestedReply, senderName string, leadID uuid.UUID, source string) []Block {
	emoji := ":snowflake:"
	switch label {
	case "high":
		emoji = ":fire:"
	case "medium":
		emoji = ":eyes:"
	}

	scorePercent := int(math.Round(score * 100))
	sourceLabel := ""
	if source == "email" {
		sourceLabel = " (via email)"
	}

	bullets := make([]string, 0, len(summary))
	for _, b := range summary {
		bullets = append(bullets, "• "+b)
	}

	quoted := ">" + strings.ReplaceAll(suggestedReply, "\n", "\n>")

	return []Block{
		{
			Type: "section",
			Text: mrkdwn(fmt.Sprintf("%s *Lead from %s%s* — Score: %d/100 (%s)",
				emoji, senderName, sourceLabel, scorePercent, strings.ToUpper(label))),
		},
		{
			Type: "section",
			Text: mrkdwn(strings.Join(bullets, "\n")),
		},
		{Type: "divider"},
		{
			Type: "section",
			Text: mrkdwn("*Suggested reply:*\n" + quoted),
		},
		{
			Type: "actions",
			Elements: []interface{}{
				Button{
					Type:     "button",
					Text:     &TextObject{Type: "plain_text", Text: ":thumbsup: Helpful", Emoji: true},
					ActionID: ActionFeedbackPositive,
					Value:    leadID.String(),
					Style:    "primary",
				},
				Button{
					Type:     "button",
					Text:     &TextObject{Type: "plain_text", Text: ":thumbsdown: Not helpful", Emoji: true},
					ActionID: ActionFeedbackNegative,
					Value:    leadID.String(),
				},
			},
		},
	}
}

// QuotaWarningBlock renders the soft usage warning appended to a lead
// notification when the tenant crosses the 80% threshold.
func QuotaWarningBlock(warning string) Block {
	return Block{
		Type:     "context",
		Elements: []interface{}{mrkdwn("_" + warning + "_")},
	}
}

// FeedbackAckText is the context line added when a feedback button press is
// acknowledged in place.
func FeedbackAckText(positive bool) string {
	if positive {
		return ":white_check_mark: Marked as helpful"
	}
	return ":pencil2: Marked as not helpful — we'll improve"
}
