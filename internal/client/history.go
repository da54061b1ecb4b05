package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

// defaultPageSize is the history page size requested per fetch.
const defaultPageSize = 50

// History fetches a group's message history from the HTTP API. Messages come
// back in the same enriched shape the live stream uses, so pages merge
// straight into a Timeline.
type History struct {
	baseURL string
	token   string
	client  *http.Client

	// PageSize overrides the per-request page size when > 0.
	PageSize int
}

// NewHistory creates a History fetcher against the given API base URL.
func NewHistory(baseURL, token string) *History {
	return &History{
		baseURL: baseURL,
		token:   token,
		client:  http.DefaultClient,
	}
}

// historyPage is the wire shape of one history response. NextBefore is the
// cursor for the following (older) page; empty means the history is
// exhausted.
type historyPage struct {
	Messages   []protocol.MessageView `json:"messages"`
	NextBefore string                 `json:"next_before"`
}

// Fetch returns one page of messages older than the before cursor, newest
// page first, plus the cursor for the next page. An empty before fetches the
// latest page.
func (h *History) Fetch(ctx context.Context, groupID, before string) ([]protocol.MessageView, string, error) {
	size := h.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	u, err := url.Parse(h.baseURL + "/groups/" + groupID + "/messages")
	if err != nil {
		return nil, "", fmt.Errorf("client: history url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(size))
	if before != "" {
		q.Set("before", before)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("client: history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("client: fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("client: history status %d", resp.StatusCode)
	}

	var page historyPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("client: decode history: %w", err)
	}
	return page.Messages, page.NextBefore, nil
}

// FetchAll pages through the complete history, oldest message first, ready
// for a single Timeline merge.
func (h *History) FetchAll(ctx context.Context, groupID string) ([]protocol.MessageView, error) {
	var pages [][]protocol.MessageView
	before := ""
	for {
		msgs, next, err := h.Fetch(ctx, groupID, before)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			pages = append(pages, msgs)
		}
		if next == "" {
			break
		}
		before = next
	}

	// Pages arrive newest-first; flatten them oldest-first.
	var out []protocol.MessageView
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, pages[i]...)
	}
	return out, nil
}
