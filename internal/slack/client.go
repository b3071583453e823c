package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adecis_backend/platform/logger"
)

// Client is a minimal Slack Web API client scoped to the calls this service
// makes: posting and editing messages, resolving user names, and fetching
// thread context. One Client wraps one bot token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a Web API client for a bot token.
func NewClient(baseURL, botToken string, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   botToken,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// ChatMessage is an outbound chat.postMessage payload.
type ChatMessage struct {
	Channel  string  `json:"channel"`
	ThreadTS string  `json:"thread_ts,omitempty"`
	Text     string  `json:"text"`
	Blocks   []Block `json:"blocks,omitempty"`
}

type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage posts a message, optionally threaded.
func (c *Client) PostMessage(ctx context.Context, msg ChatMessage) error {
	if err := c.callJSON(ctx, "chat.postMessage", msg, nil); err != nil {
		return err
	}
	c.log.Debug("slack message posted", "channel", msg.Channel, "threaded", msg.ThreadTS != "")
	return nil
}

// UpdateMessage rewrites an existing message in place. blocks replaces the
// message's block list wholesale.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []json.RawMessage) error {
	payload := map[string]interface{}{
		"channel": channel,
		"ts":      ts,
		"text":    text,
		"blocks":  blocks,
	}
	return c.callJSON(ctx, "chat.update", payload, nil)
}

// UserRealName resolves a Slack user ID to a display name.
func (c *Client) UserRealName(ctx context.Context, userID string) (string, error) {
	var result struct {
		apiEnvelope
		User struct {
			Name     string `json:"name"`
			RealName string `json:"real_name"`
		} `json:"user"`
	}

	if err := c.callForm(ctx, "users.info", url.Values{"user": {userID}}, &result); err != nil {
		return "", err
	}

	if result.User.RealName != "" {
		return result.User.RealName, nil
	}
	return result.User.Name, nil
}

// ThreadMessages fetches up to limit messages from a thread, oldest first.
func (c *Client) ThreadMessages(ctx context.Context, channel, threadTS string, limit int) ([]string, error) {
	var result struct {
		apiEnvelope
		Messages []struct {
			Text string `json:"text"`
		} `json:"messages"`
	}

	params := url.Values{
		"channel": {channel},
		"ts":      {threadTS},
		"limit":   {strconv.Itoa(limit)},
	}
	if err := c.callForm(ctx, "conversations.replies", params, &result); err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(result.Messages))
	for _, m := range result.Messages {
		texts = append(texts, m.Text)
	}
	return texts, nil
}

func (c *Client) callJSON(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, method, out)
}

func (c *Client) callForm(ctx context.Context, method string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s request failed: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("slack %s returned %d", method, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read slack %s response: %w", method, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode slack %s response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("slack %s error: %s", method, env.Error)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode slack %s response: %w", method, err)
		}
	}
	return nil
}
