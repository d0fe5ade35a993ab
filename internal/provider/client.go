package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pageinbox/inboxd/internal/store"
	"go.uber.org/zap"
)

// DefaultBaseURL is the provider's graph endpoint.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// maxPages caps pagination-follow per call so a misbehaving cursor cannot
// spin a poll tick forever.
const maxPages = 20

// Client talks to the provider's HTTP graph API and writes the pulled
// records into persistent storage.
type Client struct {
	base   string
	http   *http.Client
	db     *store.DB
	logger *zap.Logger
}

// NewClient creates a graph client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, db *store.DB, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   baseURL,
		http:   &http.Client{Timeout: 30 * time.Second},
		db:     db,
		logger: logger,
	}
}

// envelope is the provider's standard paged list wrapper.
type envelope struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// apiError is the provider's error body.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SyncConversations pulls conversation summaries for every account and
// upserts them into storage. Per-account failures abort the whole call so
// the caller's cursor does not advance past unpulled data.
func (c *Client) SyncConversations(ctx context.Context, accounts []Account) error {
	for _, acct := range accounts {
		u := fmt.Sprintf("%s/%s/conversations?fields=id,snippet,unread_count,updated_time,ad_id,participants&access_token=%s",
			c.base, url.PathEscape(acct.PageID), url.QueryEscape(acct.AccessToken))
		raws, err := c.getPaged(ctx, u)
		if err != nil {
			return fmt.Errorf("page %s conversations: %w", acct.PageID, err)
		}
		for _, raw := range raws {
			conv, err := ParseConversation(raw, acct.PageID)
			if err != nil {
				c.logger.Warn("skipping malformed conversation", zap.String("page_id", acct.PageID), zap.Error(err))
				continue
			}
			if err := c.db.UpsertConversation(conv); err != nil {
				return fmt.Errorf("upsert conversation %s: %w", conv.ID, err)
			}
		}
	}
	return nil
}

// SyncMessages pulls one conversation's messages and upserts them.
func (c *Client) SyncMessages(ctx context.Context, conversationID, pageID, accessToken string) error {
	msgs, err := c.fetchMessages(ctx, conversationID, accessToken)
	if err != nil {
		return fmt.Errorf("conversation %s messages: %w", conversationID, err)
	}
	if err := c.db.UpsertMessages(conversationID, msgs); err != nil {
		return fmt.Errorf("store conversation %s messages: %w", conversationID, err)
	}
	return nil
}

// ListNewSince scans every account for conversations updated after since and
// collects their recent messages newer than the boundary. Everything pulled
// is also written through to storage, so storage-only readers (the open
// conversation's cheap refetch) see the batch immediately.
func (c *Client) ListNewSince(ctx context.Context, accounts []Account, since time.Time) (*Delta, error) {
	delta := &Delta{}
	boundary := since.UnixMilli()

	for _, acct := range accounts {
		u := fmt.Sprintf("%s/%s/conversations?fields=id,snippet,unread_count,updated_time,ad_id,participants&since=%d&access_token=%s",
			c.base, url.PathEscape(acct.PageID), since.Unix(), url.QueryEscape(acct.AccessToken))
		raws, err := c.getPaged(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("page %s scan: %w", acct.PageID, err)
		}
		for _, raw := range raws {
			conv, err := ParseConversation(raw, acct.PageID)
			if err != nil {
				c.logger.Warn("skipping malformed conversation", zap.String("page_id", acct.PageID), zap.Error(err))
				continue
			}
			if err := c.db.UpsertConversation(conv); err != nil {
				return nil, fmt.Errorf("store conversation %s: %w", conv.ID, err)
			}
			delta.UpdatedConversations = append(delta.UpdatedConversations, *conv)

			msgs, err := c.fetchMessages(ctx, conv.ID, acct.AccessToken)
			if err != nil {
				return nil, fmt.Errorf("conversation %s scan: %w", conv.ID, err)
			}
			if err := c.db.UpsertMessages(conv.ID, msgs); err != nil {
				return nil, fmt.Errorf("store conversation %s messages: %w", conv.ID, err)
			}
			for _, m := range msgs {
				if m.CreatedAt > boundary {
					delta.NewMessages = append(delta.NewMessages, m)
				}
			}
		}
	}
	return delta, nil
}

// Send delivers one message through the page's messaging endpoint.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	body, err := json.Marshal(map[string]any{
		"recipient": map[string]string{"id": req.RecipientID},
		"message":   map[string]string{"text": req.Body},
	})
	if err != nil {
		return nil, fmt.Errorf("encode send: %w", err)
	}

	u := fmt.Sprintf("%s/%s/messages?access_token=%s",
		c.base, url.PathEscape(req.PageID), url.QueryEscape(req.AccessToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read send response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// A rejected send is an outcome, not a transport error.
		c.logger.Warn("send rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("conversation_id", req.ConversationID),
			zap.String("detail", errorMessage(payload)))
		return &SendResult{Success: false}, nil
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	return &SendResult{Success: true, RemoteMessageID: out.MessageID}, nil
}

// LiveFetch reads a conversation's messages straight from the provider.
// The page's token is looked up by the caller and passed through.
func (c *Client) LiveFetch(ctx context.Context, conversationID, pageID, accessToken string) ([]store.Message, error) {
	return c.fetchMessages(ctx, conversationID, accessToken)
}

// FetchAvatar downloads a participant's profile picture bytes.
func (c *Client) FetchAvatar(ctx context.Context, participantID string) ([]byte, error) {
	u := fmt.Sprintf("%s/%s/picture", c.base, url.PathEscape(participantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("avatar request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("avatar status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<22))
}

func (c *Client) fetchMessages(ctx context.Context, conversationID, accessToken string) ([]store.Message, error) {
	u := fmt.Sprintf("%s/%s/messages?fields=id,created_time,message,from,attachments&access_token=%s",
		c.base, url.PathEscape(conversationID), url.QueryEscape(accessToken))
	raws, err := c.getPaged(ctx, u)
	if err != nil {
		return nil, err
	}
	var msgs []store.Message
	for _, raw := range raws {
		m, err := ParseMessage(raw, conversationID)
		if err != nil {
			c.logger.Warn("skipping malformed message", zap.String("conversation_id", conversationID), zap.Error(err))
			continue
		}
		msgs = append(msgs, *m)
	}
	return msgs, nil
}

// getPaged follows paging.next until exhaustion or maxPages.
func (c *Client) getPaged(ctx context.Context, u string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for page := 0; u != "" && page < maxPages; page++ {
		env, err := c.getJSON(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, env.Data...)
		u = env.Paging.Next
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, u string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited (retry-after %s)", resp.Header.Get("Retry-After"))
	case http.StatusForbidden:
		return nil, fmt.Errorf("permission denied: %s", errorMessage(payload))
	default:
		return nil, fmt.Errorf("status %s: %s", strconv.Itoa(resp.StatusCode), errorMessage(payload))
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return &env, nil
}

func errorMessage(payload []byte) string {
	var e apiError
	if err := json.Unmarshal(payload, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(payload) > 200 {
		payload = payload[:200]
	}
	return string(payload)
}
