package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
)

type qdrantStore struct {
	log        *logger.Logger
	baseURL    string
	collection string
	apiKey     string
	httpClient *http.Client
}

// NewQdrantStore returns (nil, nil) when QDRANT_URL is unset; the vector
// store is optional.
func NewQdrantStore(log *logger.Logger) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(envutil.Str("QDRANT_URL", ""), "/")
	if baseURL == "" {
		return nil, nil
	}
	collection := envutil.Str("QDRANT_COLLECTION", "")
	if collection == "" {
		return nil, fmt.Errorf("missing QDRANT_COLLECTION")
	}
	timeoutSec := envutil.Int("QDRANT_TIMEOUT_SECONDS", 10)

	return &qdrantStore{
		log:        log.With("client", "QdrantVectorStore"),
		baseURL:    baseURL,
		collection: collection,
		apiKey:     envutil.Str("QDRANT_API_KEY", ""),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (s *qdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	type qdrantPoint struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}
	pts := make([]qdrantPoint, 0, len(points))
	for _, p := range points {
		pts = append(pts, qdrantPoint(p))
	}
	body := map[string]any{"points": pts}

	var resp struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	if err := s.doJSON(ctx, http.MethodPut, path, body, &resp); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *qdrantStore) QueryMatches(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for k, v := range filter {
			must = append(must, map[string]any{
				"key":   k,
				"match": map[string]any{"value": v},
			})
		}
		body["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", s.collection)
	if err := s.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, Match{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return out, nil
}

func (s *qdrantStore) doJSON(ctx context.Context, method, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("qdrant http %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
