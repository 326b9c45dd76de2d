package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newskeep/types"
)

// Searcher queries an external index for candidate articles by keyword.
type Searcher interface {
	Search(ctx context.Context, keyword string, limit int) ([]types.SearchItem, error)
}

const searchTimeout = 15 * time.Second

// APIClient talks to a news search HTTP API that returns
// {"items":[{"title","originallink","link","description","pubDate"}]}.
type APIClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

var _ Searcher = (*APIClient)(nil)

// NewAPIClient builds a search client for the given endpoint.
func NewAPIClient(baseURL, clientID, clientSecret string) *APIClient {
	return &APIClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: searchTimeout},
	}
}

// Search implements Searcher. Results come back relevance-sorted.
func (c *APIClient) Search(ctx context.Context, keyword string, limit int) ([]types.SearchItem, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("display", strconv.Itoa(limit))
	q.Set("sort", "sim")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Search-Client-Id", c.clientID)
	req.Header.Set("X-Search-Client-Secret", c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Items []struct {
			Title        string `json:"title"`
			OriginalLink string `json:"originallink"`
			Link         string `json:"link"`
			Description  string `json:"description"`
			PubDate      string `json:"pubDate"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]types.SearchItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		items = append(items, types.SearchItem{
			Title:        stripEmphasis(item.Title),
			Link:         item.Link,
			OriginalLink: item.OriginalLink,
			Description:  stripEmphasis(item.Description),
			PubDate:      parsePubDate(item.PubDate),
		})
	}
	return items, nil
}

// stripEmphasis removes the <b></b> highlight markers the API wraps around
// matched terms.
func stripEmphasis(s string) string {
	s = strings.ReplaceAll(s, "<b>", "")
	s = strings.ReplaceAll(s, "</b>", "")
	return strings.TrimSpace(s)
}

func parsePubDate(raw string) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
