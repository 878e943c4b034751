package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// Client is the web-search capability. The validation engine compares a
// category-filtered query against an unfiltered one, so the contract is a
// simple query -> result list.
type Client interface {
	Search(ctx context.Context, query string, limit int) (*SearchResult, error)
}

type SearchItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type SearchResult struct {
	Query      string       `json:"query"`
	TotalCount int          `json:"total_count"`
	Items      []SearchItem `json:"items"`
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("WEBSEARCH_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing WEBSEARCH_URL")
	}
	apiKey := strings.TrimSpace(os.Getenv("WEBSEARCH_API_KEY"))

	return &client{
		log:        log.With("service", "WebSearchClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: envutil.Duration("WEBSEARCH_TIMEOUT", 15*time.Second)},
	}, nil
}

type searchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		URL     string `json:"url"`
	} `json:"items"`
}

func (c *client) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = 10
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", fmt.Sprint(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("websearch http %d: %s", resp.StatusCode, string(raw))
	}

	var body searchResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("websearch decode error: %w", err)
	}

	out := &SearchResult{
		Query:      query,
		TotalCount: body.TotalCount,
	}
	for _, item := range body.Items {
		out.Items = append(out.Items, SearchItem{
			Title:   item.Title,
			Snippet: item.Snippet,
			URL:     item.URL,
		})
	}
	return out, nil
}
