package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

// HTTPHistory talks to the server's chat history endpoints.
type HTTPHistory struct {
	base   string
	client *http.Client
}

func NewHTTPHistory(baseURL string, client *http.Client) *HTTPHistory {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHistory{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (h *HTTPHistory) endpoint(room domain.RoomID) string {
	return fmt.Sprintf("%s/api/rooms/%s/chats", h.base, url.PathEscape(string(room)))
}

func (h *HTTPHistory) Fetch(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint(room), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch chat history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch chat history", resp)
	}
	var body protocol.ChatHistory
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode chat history: %w", err)
	}
	return body.Chats, nil
}

func (h *HTTPHistory) Append(ctx context.Context, room domain.RoomID, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint(room), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("append chat", resp)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
