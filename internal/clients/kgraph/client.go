package kgraph

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

// Client is the knowledge-graph capability: given a term it returns the
// canonical entity and the category the graph files it under.
type Client interface {
	Lookup(ctx context.Context, term string) (*Entity, error)
}

type Entity struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
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
	baseURL := strings.TrimSpace(os.Getenv("KGRAPH_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing KGRAPH_URL")
	}
	apiKey := strings.TrimSpace(os.Getenv("KGRAPH_API_KEY"))

	return &client{
		log:        log.With("service", "KnowledgeGraphClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: envutil.Duration("KGRAPH_TIMEOUT", 10*time.Second)},
	}, nil
}

type lookupResponse struct {
	Entities []struct {
		Name     string  `json:"name"`
		Category string  `json:"category"`
		Score    float64 `json:"score"`
	} `json:"entities"`
}

func (c *client) Lookup(ctx context.Context, term string) (*Entity, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("empty term")
	}

	q := url.Values{}
	q.Set("query", term)
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/entities?"+q.Encode(), nil)
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
		return nil, fmt.Errorf("kgraph http %d: %s", resp.StatusCode, string(raw))
	}

	var body lookupResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("kgraph decode error: %w", err)
	}
	if len(body.Entities) == 0 {
		return nil, nil
	}
	e := body.Entities[0]
	return &Entity{
		Name:     e.Name,
		Category: e.Category,
		Score:    e.Score,
	}, nil
}
