// Package leads stores scored inbound messages and owns the one-shot reply
// protocol: an atomic claim on the lead row gates every outbound send.
package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLeadNotFound = errors.New("lead not found")

// Lead is one scored inbound message.
type Lead struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"-"`
	Source           string     `json:"source"`
	SourceID         string     `json:"-"`
	SourceChannel    string     `json:"-"`
	SenderName       string     `json:"sender_name"`
	SenderIdentifier string     `json:"-"`
	RawMessage       string     `json:"raw_message"`
	ThreadContext    string     `json:"-"`
	IntentScore      float64    `json:"intent_score"`
	IntentLabel      string     `json:"intent_label"`
	SummaryBullets   []string   `json:"summary_bullets"`
	SuggestedReply   string     `json:"suggested_reply"`
	ModelUsed        string     `json:"-"`
	PromptTokens     int        `json:"-"`
	CompletionTokens int        `json:"-"`
	AILatencyMs      int64      `json:"-"`
	SlackThreadTS    string     `json:"slack_thread_ts,omitempty"`
	SlackChannelID   string     `json:"slack_channel_id,omitempty"`
	ReplySent        bool       `json:"reply_sent"`
	ReplySentAt      *time.Time `json:"reply_sent_at,omitempty"`
	Feedback         string     `json:"feedback,omitempty"`
	FeedbackAt       *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ClaimedLead is the slice of the lead returned by a successful reply claim.
type ClaimedLead struct {
	ID             uuid.UUID
	Source         string
	SuggestedReply string
	SlackThreadTS  string
	SlackChannelID string
	ReplySentAt    time.Time
}

// ListFilter narrows and pages the lead list.
type ListFilter struct {
	Source string
	Label  string
	Page   int
}

// PageSize is the fixed lead-list page size.
const PageSize = 20

// Repository provides data access for leads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new leads repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a scored lead.
func (r *Repository) Create(ctx context.Context, lead *Lead) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			user_id, source, source_id, source_channel, sender_name, sender_identifier,
			raw_message, thread_context, intent_score, intent_label, summary_bullets,
			suggested_reply, model_used, prompt_tokens, completion_tokens, ai_latency_ms,
			slack_thread_ts, slack_channel_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id, created_at
	`,
		lead.UserID, lead.Source, lead.SourceID, lead.SourceChannel, lead.SenderName,
		lead.SenderIdentifier, lead.RawMessage, lead.ThreadContext, lead.IntentScore,
		lead.IntentLabel, lead.SummaryBullets, lead.SuggestedReply, lead.ModelUsed,
		lead.PromptTokens, lead.CompletionTokens, lead.AILatencyMs,
		nullable(lead.SlackThreadTS), nullable(lead.SlackChannelID),
	).Scan(&lead.ID, &lead.CreatedAt)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetByID returns a lead owned by the given user.
func (r *Repository) GetByID(ctx context.Context, id, userID uuid.UUID) (Lead, error) {
	var l Lead
	var threadTS, channelID, feedback *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, source, sender_name, raw_message, intent_score, intent_label,
		       summary_bullets, COALESCE(suggested_reply, ''), slack_thread_ts,
		       slack_channel_id, reply_sent, reply_sent_at, feedback, created_at
		FROM leads
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(
		&l.ID, &l.UserID, &l.Source, &l.SenderName, &l.RawMessage, &l.IntentScore,
		&l.IntentLabel, &l.SummaryBullets, &l.SuggestedReply, &threadTS,
		&channelID, &l.ReplySent, &l.ReplySentAt, &feedback, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrLeadNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	l.SlackThreadTS = deref(threadTS)
	l.SlackChannelID = deref(channelID)
	l.Feedback = deref(feedback)
	return l, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListResult is one page of leads plus totals.
type ListResult struct {
	Leads      []Lead
	Total      int
	Page       int
	TotalPages int
}

// List returns a page of the user's leads, newest first.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, filter ListFilter) (ListResult, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}

	where := []string{"user_id = $1"}
	args := []interface{}{userID}
	if filter.Source != "" {
		args = append(args, filter.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Label != "" {
		args = append(args, filter.Label)
		where = append(where, fmt.Sprintf("intent_label = $%d", len(args)))
	}
	condition := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM leads WHERE "+condition, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}

	args = append(args, PageSize, (page-1)*PageSize)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, source, sender_name, raw_message, intent_score, intent_label,
		       summary_bullets, COALESCE(suggested_reply, ''), slack_thread_ts,
		       slack_channel_id, reply_sent, reply_sent_at, feedback, created_at
		FROM leads
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, condition, len(args)-1, len(args)), args...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	leads := []Lead{}
	for rows.Next() {
		var l Lead
		var threadTS, channelID, feedback *string
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Source, &l.SenderName, &l.RawMessage, &l.IntentScore,
			&l.IntentLabel, &l.SummaryBullets, &l.SuggestedReply, &threadTS,
			&channelID, &l.ReplySent, &l.ReplySentAt, &feedback, &l.CreatedAt,
		); err != nil {
			return ListResult{}, err
		}
		l.SlackThreadTS = deref(threadTS)
		l.SlackChannelID = deref(channelID)
		l.Feedback = deref(feedback)
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}

	totalPages := (total + PageSize - 1) / PageSize
	return ListResult{Leads: leads, Total: total, Page: page, TotalPages: totalPages}, nil
}

// ClaimReply atomically marks the lead as sent. The conditional update is
// the serialization point for concurrent send attempts: exactly one caller
// sees a row come back, everyone else gets ErrLeadNotFound and must re-read
// to find out why.
func (r *Repository) ClaimReply(ctx context.Context, id, userID uuid.UUID) (ClaimedLead, error) {
	var claimed ClaimedLead
	var reply, threadTS, channelID *string
	err := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET reply_sent = true, reply_sent_at = now()
		WHERE id = $1 AND user_id = $2 AND reply_sent = false
		RETURNING id, source, suggested_reply, slack_thread_ts, slack_channel_id, reply_sent_at
	`, id, userID).Scan(&claimed.ID, &claimed.Source, &reply, &threadTS, &channelID, &claimed.ReplySentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClaimedLead{}, ErrLeadNotFound
	}
	if err != nil {
		return ClaimedLead{}, err
	}
	claimed.SuggestedReply = deref(reply)
	claimed.SlackThreadTS = deref(threadTS)
	claimed.SlackChannelID = deref(channelID)
	return claimed, nil
}

// ReleaseReplyClaim undoes a claim after a downstream failure so a later
// attempt can succeed.
func (r *Repository) ReleaseReplyClaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET reply_sent = false, reply_sent_at = NULL
		WHERE id = $1
	`, id)
	return err
}

// ReplySent reports whether the lead's reply has been dispatched.
func (r *Repository) ReplySent(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	var sent bool
	err := r.pool.QueryRow(ctx, `
		SELECT reply_sent FROM leads WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrLeadNotFound
	}
	return sent, err
}

// SetFeedback overwrites the lead's feedback and appends an audit row.
// Re-submission is allowed; duplicate feedback has no safety implication.
func (r *Repository) SetFeedback(ctx context.Context, id, userID uuid.UUID, feedback string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET feedback = $3, feedback_at = now()
		WHERE id = $1 AND user_id = $2
	`, id, userID, feedback)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO feedback_log (lead_id, user_id, feedback) VALUES ($1, $2, $3)
	`, id, userID, feedback)
	return err
}
