package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/phonego-ryong/holyDayBot/internal/models"
	"github.com/phonego-ryong/holyDayBot/internal/util"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// Client calls the three Slack Web API methods the reconciler needs. Calls
// are paced through a shared limiter; HTTP 429 responses are retried a
// bounded number of times, every other failure propagates to the caller.
type Client struct {
	baseURL    string
	token      string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

func New(baseURL, token string, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
		maxRetries: maxRetries,
	}
}

type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type scheduledMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	PostAt    int64  `json:"post_at"`
	Text      string `json:"text"`
}

type listScheduledResponse struct {
	ScheduledMessages []scheduledMessage `json:"scheduled_messages"`
}

// ListScheduled returns every scheduled post in the channel whose post_at
// exactly equals postAt.
func (c *Client) ListScheduled(ctx context.Context, channel string, postAt int64) ([]models.ScheduledPost, error) {
	payload := map[string]string{
		"channel": channel,
		"oldest":  strconv.FormatInt(postAt, 10),
		"latest":  strconv.FormatInt(postAt, 10),
	}

	var resp listScheduledResponse
	if err := c.call(ctx, "chat.scheduledMessages.list", payload, &resp); err != nil {
		return nil, err
	}

	posts := make([]models.ScheduledPost, 0, len(resp.ScheduledMessages))
	for _, m := range resp.ScheduledMessages {
		posts = append(posts, models.ScheduledPost{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			PostAt:    m.PostAt,
			Text:      m.Text,
		})
	}
	return posts, nil
}

// DeleteScheduled removes one scheduled post.
func (c *Client) DeleteScheduled(ctx context.Context, channel, id string) error {
	payload := map[string]string{
		"channel":              channel,
		"scheduled_message_id": id,
	}
	return c.call(ctx, "chat.deleteScheduledMessage", payload, nil)
}

type scheduleRequest struct {
	Channel string  `json:"channel"`
	Text    string  `json:"text"`
	Blocks  []Block `json:"blocks"`
	PostAt  int64   `json:"post_at"`
}

// Schedule posts a roster banner for the table's entries, delivered at
// postAt in the given channel.
func (c *Client) Schedule(ctx context.Context, channel string, table models.Table, entries []string, postAt int64) error {
	text, blocks := RosterMessage(table, entries)
	payload := scheduleRequest{
		Channel: channel,
		Text:    text,
		Blocks:  blocks,
		PostAt:  postAt,
	}
	return c.call(ctx, "chat.scheduleMessage", payload, nil)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	return util.RetryWithBackoff(ctx, c.maxRetries, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			return util.Permanent(fmt.Errorf("slack %s request failed: %w", method, err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return util.Permanent(fmt.Errorf("slack %s read response: %w", method, err))
		}

		// 429 is the only transport failure worth retrying; everything else
		// aborts the reconciliation run per the error contract.
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("Slack rate limited",
				"method", method,
				"attempt", attempt,
				"retry_after", resp.Header.Get("Retry-After"))
			return fmt.Errorf("slack %s rate limited", method)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return util.Permanent(fmt.Errorf("slack %s status %s: %s", method, resp.Status, respBody))
		}

		var env apiEnvelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return util.Permanent(fmt.Errorf("slack %s decode response: %w", method, err))
		}
		if !env.OK {
			return util.Permanent(fmt.Errorf("slack %s failed: %s", method, env.Error))
		}
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return util.Permanent(fmt.Errorf("slack %s decode response: %w", method, err))
			}
		}
		return nil
	})
}
