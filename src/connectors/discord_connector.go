package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// discordEpochMs is the Discord snowflake epoch (2015-01-01 UTC) in millis.
const discordEpochMs = 1420070400000

// -----------------------------
// MESSAGE TYPES
// -----------------------------
type DiscordAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type DiscordEmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Fields      []DiscordEmbedField `json:"fields"`
}

type DiscordMessage struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channel_id"`
	Content   string         `json:"content"`
	Author    DiscordAuthor  `json:"author"`
	Embeds    []DiscordEmbed `json:"embeds"`
}

// -----------------------------
// CLIENT
// -----------------------------
type DiscordClient struct {
	token string
	http  *resty.Client
}

func NewDiscordClient(token, baseURL string) *DiscordClient {
	if baseURL == "" {
		baseURL = "https://discord.com/api/v10"
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &DiscordClient{
		token: token,
		http:  httpClient,
	}
}

// FetchAfter returns up to limit messages from the channel strictly newer
// than afterID. With an empty afterID it returns the newest messages.
// Discord returns newest first; ordering is the caller's concern.
func (c *DiscordClient) FetchAfter(ctx context.Context, channelID, afterID string, limit int) ([]DiscordMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.token).
		SetQueryParam("limit", strconv.Itoa(limit))
	if afterID != "" {
		req = req.SetQueryParam("after", afterID)
	}

	resp, err := req.Get(fmt.Sprintf("/channels/%s/messages", channelID))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var messages []DiscordMessage
	if err := json.Unmarshal(resp.Body(), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// FetchMessage returns a single message by id.
func (c *DiscordClient) FetchMessage(ctx context.Context, channelID, messageID string) (*DiscordMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.token).
		Get(fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var msg DiscordMessage
	if err := json.Unmarshal(resp.Body(), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExtractText flattens a message into one searchable blob: plain content
// first, then every embed title, description and field.
func ExtractText(m DiscordMessage) string {
	parts := make([]string, 0, 1+len(m.Embeds)*3)
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	for _, e := range m.Embeds {
		if e.Title != "" {
			parts = append(parts, e.Title)
		}
		if e.Description != "" {
			parts = append(parts, e.Description)
		}
		for _, f := range e.Fields {
			if f.Name != "" {
				parts = append(parts, f.Name)
			}
			if f.Value != "" {
				parts = append(parts, f.Value)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// SnowflakeUnix converts a snowflake id to unix seconds. Unparsable ids
// yield zero.
func SnowflakeUnix(id string) int64 {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0
	}
	ms := int64(n>>22) + discordEpochMs
	return ms / 1000
}
