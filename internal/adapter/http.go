package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// probeQuery is the fixed minimal query used by connectivity tests.
const probeQuery = "ping"

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// doJSON issues an HTTP request with a JSON body (nil for none) and returns
// the response body. The caller's context supplies the deadline.
func doJSON(ctx context.Context, client *http.Client, method, url, apiKey string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrSourceUnavailable, resp.StatusCode, truncate(respBody, 200))
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// resultPaths holds the gjson paths used to pull items out of a source's
// JSON response.
type resultPaths struct {
	items     string
	content   string
	score     string
	timestamp string
}

func pathsFromConfig(cfg map[string]string) resultPaths {
	p := resultPaths{
		items:     cfg["results_path"],
		content:   cfg["content_path"],
		score:     cfg["score_path"],
		timestamp: cfg["timestamp_path"],
	}
	if p.items == "" {
		p.items = "results"
	}
	if p.content == "" {
		p.content = "content"
	}
	if p.score == "" {
		p.score = "score"
	}
	if p.timestamp == "" {
		p.timestamp = "timestamp"
	}
	return p
}

// rawItem is one parsed response entry before score normalization.
type rawItem struct {
	content   string
	score     float64
	hasScore  bool
	timestamp time.Time
	extra     map[string]string
}

// parseItems extracts result entries from a JSON body via the configured
// paths. Items without content are skipped.
func parseItems(body []byte, p resultPaths) []rawItem {
	var items []rawItem
	gjson.GetBytes(body, p.items).ForEach(func(_, value gjson.Result) bool {
		content := value.Get(p.content).String()
		if content == "" {
			return true
		}
		item := rawItem{content: content}
		if sc := value.Get(p.score); sc.Exists() {
			item.score = sc.Float()
			item.hasScore = true
		}
		item.timestamp = parseTimestamp(value.Get(p.timestamp))
		items = append(items, item)
		return true
	})
	return items
}

// parseTimestamp accepts RFC3339 strings and unix seconds or milliseconds.
// Returns the zero time when absent or unparsable; fusion assigns floor
// freshness rather than dropping such results.
func parseTimestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return ts
		}
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}
		}
		// Heuristic: values past the year 2603 in seconds are milliseconds.
		if n > 20_000_000_000 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	}
	return time.Time{}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
