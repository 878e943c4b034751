package clusterer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/httpx"
	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// Client is the density-clustering capability. The grouping algorithm itself
// runs behind this boundary; the backend only shapes the request and
// validates the response.
type Client interface {
	Cluster(ctx context.Context, texts []string, ids []uuid.UUID, minClusterSize, minSamples int) (*types.ClusterOutcome, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("CLUSTERER_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing CLUSTERER_URL")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	// Clustering over a full category of answers is minutes-scale.
	timeout := envutil.Duration("CLUSTERER_TIMEOUT", 5*time.Minute)

	return &client{
		log:        log.With("service", "ClustererClient"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: envutil.Int("CLUSTERER_MAX_RETRIES", 2),
	}, nil
}

type clusterRequest struct {
	Texts          []string `json:"texts"`
	IDs            []string `json:"ids"`
	MinClusterSize int      `json:"min_cluster_size"`
	MinSamples     int      `json:"min_samples"`
}

type clusterResponse struct {
	NClusters  int `json:"n_clusters"`
	NoiseCount int `json:"noise_count"`
	Clusters   map[string]struct {
		Texts []string `json:"texts"`
		IDs   []string `json:"ids"`
		Size  int      `json:"size"`
	} `json:"clusters"`
}

type clustererHTTPError struct {
	StatusCode int
	Body       string
}

func (e *clustererHTTPError) Error() string {
	return fmt.Sprintf("clusterer http %d: %s", e.StatusCode, e.Body)
}

func (e *clustererHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) Cluster(ctx context.Context, texts []string, ids []uuid.UUID, minClusterSize, minSamples int) (*types.ClusterOutcome, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to cluster")
	}
	if len(texts) != len(ids) {
		return nil, fmt.Errorf("texts/ids length mismatch: %d vs %d", len(texts), len(ids))
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	req := clusterRequest{
		Texts:          texts,
		IDs:            idStrs,
		MinClusterSize: minClusterSize,
		MinSamples:     minSamples,
	}

	var resp clusterResponse
	if err := c.post(ctx, "/cluster", req, &resp); err != nil {
		return nil, err
	}
	return decodeOutcome(resp)
}

func (c *client) post(ctx context.Context, path string, body any, out any) error {
	backoff := 2 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("clusterer decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 30*time.Second))
		c.log.Warn("Clusterer request retrying",
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &clustererHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// decodeOutcome validates the response shape. An all-noise result (zero
// clusters) is valid and propagates as-is.
func decodeOutcome(resp clusterResponse) (*types.ClusterOutcome, error) {
	if resp.NClusters < 0 || resp.NoiseCount < 0 {
		return nil, fmt.Errorf("clusterer returned negative counts: n_clusters=%d noise=%d", resp.NClusters, resp.NoiseCount)
	}
	if len(resp.Clusters) != resp.NClusters {
		return nil, fmt.Errorf("clusterer count mismatch: n_clusters=%d but %d cluster entries", resp.NClusters, len(resp.Clusters))
	}

	out := &types.ClusterOutcome{
		NClusters:  resp.NClusters,
		NoiseCount: resp.NoiseCount,
		Clusters:   make(map[int]types.Cluster, len(resp.Clusters)),
	}
	for key, entry := range resp.Clusters {
		var cid int
		if _, err := fmt.Sscanf(key, "%d", &cid); err != nil {
			return nil, fmt.Errorf("clusterer returned non-numeric cluster id %q", key)
		}
		if entry.Size != len(entry.Texts) {
			return nil, fmt.Errorf("cluster %d size %d does not match %d member texts", cid, entry.Size, len(entry.Texts))
		}
		memberIDs := make([]uuid.UUID, 0, len(entry.IDs))
		for _, s := range entry.IDs {
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("cluster %d contains invalid member id %q", cid, s)
			}
			memberIDs = append(memberIDs, id)
		}
		out.Clusters[cid] = types.Cluster{
			ID:    cid,
			Texts: entry.Texts,
			IDs:   memberIDs,
			Size:  entry.Size,
		}
	}
	return out, nil
}
