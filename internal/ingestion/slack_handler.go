package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"adecis_backend/internal/installations"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/logger"
)

// FeedbackStore records feedback originating from a Slack button press.
type FeedbackStore interface {
	SetFeedback(ctx context.Context, id, userID uuid.UUID, feedback string) error
}

// MessageUpdater rewrites a delivered notification in place.
type MessageUpdater interface {
	UpdateMessage(ctx context.Context, channel, ts, text string, blocks []json.RawMessage) error
}

// SlackHandler terminates the Slack webhook endpoints. Both run behind the
// signature-verification middleware; past that point every response is 200
// so Slack does not retry.
type SlackHandler struct {
	orchestrator *Orchestrator
	installs     InstallationSource
	feedback     FeedbackStore
	updaterFor   func(token string) MessageUpdater
	limiter      EventLimiter
	log          *logger.Logger
}

// NewSlackHandler creates the Slack webhook handler.
func NewSlackHandler(
	orchestrator *Orchestrator,
	installs InstallationSource,
	feedback FeedbackStore,
	updaterFor func(token string) MessageUpdater,
	limiter EventLimiter,
	log *logger.Logger,
) *SlackHandler {
	return &SlackHandler{
		orchestrator: orchestrator,
		installs:     installs,
		feedback:     feedback,
		updaterFor:   updaterFor,
		limiter:      limiter,
		log:          log,
	}
}

type slackEventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type     string `json:"type"`
		Channel  string `json:"channel"`
		User     string `json:"user"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
		BotID    string `json:"bot_id"`
		Subtype  string `json:"subtype"`
	} `json:"event"`
}

// Events handles POST /webhooks/slack/events.
func (h *SlackHandler) Events(c *gin.Context) {
	body := slack.RawBody(c)

	var envelope slackEventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Authenticated but malformed; ack so Slack does not retry.
		c.String(http.StatusOK, "OK")
		return
	}

	if envelope.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
		return
	}

	if envelope.Type != "event_callback" || envelope.Event.Type != "message" {
		c.String(http.StatusOK, "OK")
		return
	}

	event := envelope.Event
	// Bot messages, edits/deletes (subtypes), and empty messages are noise.
	if event.BotID != "" || event.Subtype != "" || strings.TrimSpace(event.Text) == "" {
		c.String(http.StatusOK, "OK")
		return
	}

	// Slack redelivers on slow responses; the marker write is atomic, so a
	// redelivered event is dropped here even if the first is still running.
	if h.limiter.IsDuplicate(c.Request.Context(), envelope.EventID) {
		c.String(http.StatusOK, "OK")
		return
	}

	// Ack now, continue in the background. One attempt, no retries.
	msg := SlackMessage{
		TeamID:   envelope.TeamID,
		Channel:  event.Channel,
		User:     event.User,
		Text:     event.Text,
		TS:       event.TS,
		ThreadTS: event.ThreadTS,
	}
	ctx := context.WithoutCancel(c.Request.Context())
	go h.orchestrator.ProcessSlackMessage(ctx, msg)

	c.String(http.StatusOK, "OK")
}

type interactionPayload struct {
	Type string `json:"type"`
	Team struct {
		ID string `json:"id"`
	} `json:"team"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS     string            `json:"ts"`
		Blocks []json.RawMessage `json:"blocks"`
	} `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// Interactions handles POST /webhooks/slack/interactions: feedback button
// presses on delivered notifications.
func (h *SlackHandler) Interactions(c *gin.Context) {
	body := slack.RawBody(c)

	// Slack wraps the JSON payload in a form field.
	values, err := url.ParseQuery(string(body))
	if err != nil || values.Get("payload") == "" {
		c.String(http.StatusBadRequest, "Missing payload")
		return
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(values.Get("payload")), &payload); err != nil {
		c.String(http.StatusOK, "OK")
		return
	}

	if payload.Type != "block_actions" || len(payload.Actions) == 0 {
		c.String(http.StatusOK, "OK")
		return
	}

	action := payload.Actions[0]
	leadID, err := uuid.Parse(action.Value)
	if err != nil {
		c.String(http.StatusOK, "OK")
		return
	}

	positive := action.ActionID == slack.ActionFeedbackPositive
	feedback := "negative"
	if positive {
		feedback = "positive"
	}

	inst, err := h.installs.GetByTeamID(c.Request.Context(), payload.Team.ID)
	if err != nil {
		c.String(http.StatusOK, "OK")
		return
	}

	if err := h.feedback.SetFeedback(c.Request.Context(), leadID, inst.UserID, feedback); err != nil {
		h.log.DatabaseError("record slack feedback", err)
		c.String(http.StatusOK, "OK")
		return
	}

	h.acknowledgeInPlace(c.Request.Context(), inst, payload, positive)
	c.String(http.StatusOK, "OK")
}

// acknowledgeInPlace rewrites the notification: the actions block is
// removed and an ack context line appended. Best effort.
func (h *SlackHandler) acknowledgeInPlace(ctx context.Context, inst installations.Installation, payload interactionPayload, positive bool) {
	kept := make([]json.RawMessage, 0, len(payload.Message.Blocks)+1)
	for _, raw := range payload.Message.Blocks {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.Type == "actions" {
			continue
		}
		kept = append(kept, raw)
	}

	ack, err := json.Marshal(slack.Block{
		Type:     "context",
		Elements: []interface{}{map[string]string{"type": "mrkdwn", "text": slack.FeedbackAckText(positive)}},
	})
	if err != nil {
		return
	}
	kept = append(kept, ack)

	updater := h.updaterFor(inst.BotToken)
	if err := updater.UpdateMessage(ctx, payload.Channel.ID, payload.Message.TS, "Feedback recorded", kept); err != nil {
		h.log.Error("failed to update slack notification", "channel", payload.Channel.ID, "error", err.Error())
	}
}
