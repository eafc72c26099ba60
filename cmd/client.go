package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// apiClient talks to a running catalog-scraper over its HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type clientOptions struct {
	server string
	apiKey string
}

func (o *clientOptions) client() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(o.server, "/"),
		apiKey:  o.apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) requestScrape(ctx context.Context, rawURL, target string, force bool) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"url":           rawURL,
		"target_type":   target,
		"force_refresh": force,
	})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	var resp struct {
		JobID int64 `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/scrape", body, http.StatusAccepted, &resp); err != nil {
		return 0, err
	}
	return resp.JobID, nil
}

func (c *apiClient) getJob(ctx context.Context, id int64) (scrape.ScrapeJob, error) {
	var job scrape.ScrapeJob
	err := c.do(ctx, http.MethodGet, "/v1/jobs/"+strconv.FormatInt(id, 10), nil, http.StatusOK, &job)
	return job, err
}

func (c *apiClient) waitForJob(ctx context.Context, id int64, interval time.Duration) (scrape.ScrapeJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.getJob(ctx, id)
		if err != nil {
			return scrape.ScrapeJob{}, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("wait for job %d: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
