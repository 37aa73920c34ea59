package ragbot

import (
	"avachat/app/config"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/do"
)

const lookupTimeout = 10 * time.Second

type Client struct {
	cfg        *config.Config
	httpClient *http.Client

	// repeated questions get a recap of the previous answer instead of a
	// second RAG round-trip
	answers *gocache.Cache
}

type lookupRequest struct {
	Query string `json:"query"`
}

type lookupResponse struct {
	Answer string `json:"answer"`
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	ttl := time.Duration(cfg.RagBot.CacheTTLSec) * time.Second

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: lookupTimeout},
		answers:    gocache.New(ttl, ttl),
	}, nil
}

func (c *Client) Enabled() bool {
	return c.cfg.RagBot.URL != ""
}

func (c *Client) Lookup(ctx context.Context, query string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("ragbot is not configured")
	}

	cacheKey := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := c.answers.Get(cacheKey); ok {
		return cached.(string), nil
	}

	body, err := json.Marshal(lookupRequest{Query: query})
	if err != nil {
		return "", fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RagBot.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ragbot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ragbot returned status %d", resp.StatusCode)
	}

	var result lookupResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode ragbot response: %w", err)
	}

	if result.Answer == "" {
		return "", fmt.Errorf("ragbot returned an empty answer")
	}

	c.answers.SetDefault(cacheKey, result.Answer)

	return result.Answer, nil
}
