package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client speaks the Qdrant HTTP API: collection management plus
// collection-scoped upsert, filtered search, filtered delete and scroll.
type Client interface {
	EnsureCollection(ctx context.Context, name string, dimensions int) error
	UpsertPoints(ctx context.Context, collection string, points []Point) error
	DeletePoints(ctx context.Context, collection string, filter Filter) error
	Search(ctx context.Context, collection string, req SearchRequest) ([]ScoredPoint, error)
	Scroll(ctx context.Context, collection string, req ScrollRequest) (*ScrollResult, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type ScoredPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Filter is a Qdrant filter clause. Only exact-match "must" conditions are
// needed here; helpers build the wire shape.
type Filter struct {
	Must []Condition `json:"must,omitempty"`
}

type Condition struct {
	Key   string `json:"key"`
	Match Match  `json:"match"`
}

type Match struct {
	Value any `json:"value"`
}

// MatchField builds a single exact-match condition.
func MatchField(key string, value any) Condition {
	return Condition{Key: key, Match: Match{Value: value}}
}

type SearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	Filter      *Filter   `json:"filter,omitempty"`
	WithPayload bool      `json:"with_payload"`
}

type ScrollRequest struct {
	Filter      *Filter `json:"filter,omitempty"`
	Limit       int     `json:"limit"`
	Offset      *string `json:"offset,omitempty"`
	WithPayload bool    `json:"with_payload"`
}

type ScrollResult struct {
	Points     []ScoredPoint
	NextOffset *string
}

type client struct {
	log  *slog.Logger
	cfg  Config
	http *http.Client
}

func New(log *slog.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &client{
		log:  log.With("client", "QdrantClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("qdrant response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant status %d on %s %s", resp.StatusCode, method, path)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("qdrant response decode failed: %w", err)
		}
	}
	return nil
}

func (c *client) EnsureCollection(ctx context.Context, name string, dimensions int) error {
	// Existence check first so ensure stays idempotent across restarts.
	var probe struct {
		Status string `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, &probe)
	if err == nil {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if err := c.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	c.log.Info("Created vector collection", "collection", name, "dimensions", dimensions)
	return nil
}

func (c *client) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	return c.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil)
}

func (c *client) DeletePoints(ctx context.Context, collection string, filter Filter) error {
	body := map[string]any{"filter": filter}
	return c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
}

func (c *client) Search(ctx context.Context, collection string, req SearchRequest) ([]ScoredPoint, error) {
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	out := make([]ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, ScoredPoint{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return out, nil
}

func (c *client) Scroll(ctx context.Context, collection string, req ScrollRequest) (*ScrollResult, error) {
	var resp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
			NextPageOffset *string `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", req, &resp); err != nil {
		return nil, err
	}

	result := &ScrollResult{NextOffset: resp.Result.NextPageOffset}
	for _, p := range resp.Result.Points {
		result.Points = append(result.Points, ScoredPoint{
			ID:      fmt.Sprintf("%v", p.ID),
			Payload: p.Payload,
		})
	}
	return result, nil
}
