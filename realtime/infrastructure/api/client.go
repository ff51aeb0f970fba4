// Package api implements the chat.API contract against the backend
// REST surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/AzielCF/az-chat/realtime/domain/session"
)

const defaultTimeout = 15 * time.Second

// Client talks to the conversation backend over HTTP. The identity
// provider is consulted per request so a refreshed token is picked up
// without rebuilding the client.
type Client struct {
	baseURL  string
	http     *http.Client
	identity session.IdentityProvider
}

func NewClient(baseURL string, identity session.IdentityProvider) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: defaultTimeout},
		identity: identity,
	}
}

func (c *Client) ConversationPeers(ctx context.Context) ([]chat.PeerSummary, error) {
	var peers []chat.PeerSummary
	if err := c.do(ctx, http.MethodGet, "/conversation-peers", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (c *Client) OnlinePeers(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodGet, "/online-peers", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/heartbeat", nil, nil)
}

func (c *Client) Transcript(ctx context.Context, peerID string) ([]chat.Message, error) {
	var messages []chat.Message
	path := "/conversation/" + url.PathEscape(peerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) SendMessage(ctx context.Context, to, text string) (chat.Message, error) {
	body := map[string]string{
		"to":   to,
		"text": text,
	}
	var msg chat.Message
	if err := c.do(ctx, http.MethodPost, "/message", body, &msg); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (c *Client) MarkSeen(ctx context.Context, messageID string) error {
	path := "/message/" + url.PathEscape(messageID) + "/seen"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	identity, err := c.identity.Current(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+identity.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, session.ErrNoIdentity)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
