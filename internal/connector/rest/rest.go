// Package rest is a generic polling connector for platforms fronted by a
// small JSON API: GET /products, GET /changes?since=, POST /events.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"commerce-sync-engine/internal/domain"
)

type Config struct {
	Platform string
	BaseURL  string
	Token    string
	// ProductsPath is the gjson path of the product array in the /products body.
	ProductsPath string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

type Connector struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	cursor string
}

func New(cfg Config) *Connector {
	if cfg.ProductsPath == "" {
		cfg.ProductsPath = "products"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Connector{cfg: cfg, client: client}
}

func (c *Connector) Platform() string {
	return c.cfg.Platform
}

func (c *Connector) Emit(ctx context.Context, event *domain.SyncEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.ID)

	_, err = c.do(req)
	return err
}

// Receive polls /changes until ctx is done or a poll fails.
func (c *Connector) Receive(ctx context.Context, out chan<- domain.RawEvent) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.poll(ctx, out); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll fetches one page of changes. Changes that fail to decode are skipped
// so the cursor still advances past them.
func (c *Connector) poll(ctx context.Context, out chan<- domain.RawEvent) error {
	c.mu.Lock()
	path := "/changes"
	if c.cursor != "" {
		path += "?since=" + url.QueryEscape(c.cursor)
	}
	c.mu.Unlock()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}

	result := gjson.ParseBytes(body)
	for _, item := range result.Get("events").Array() {
		var raw domain.RawEvent
		if err := json.Unmarshal([]byte(item.Raw), &raw); err != nil {
			log.Printf("[REST] skipping invalid change from %s: %v", c.cfg.Platform, err)
			continue
		}
		if raw.Platform == "" {
			raw.Platform = c.cfg.Platform
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if cursor := result.Get("cursor"); cursor.Exists() {
		c.mu.Lock()
		c.cursor = cursor.String()
		c.mu.Unlock()
	}
	return nil
}

func (c *Connector) GetProducts(ctx context.Context) ([]domain.CatalogEntry, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/products", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(body, c.cfg.ProductsPath)
	if !items.IsArray() {
		return nil, fmt.Errorf("no product array at %q", c.cfg.ProductsPath)
	}

	var entries []domain.CatalogEntry
	for _, item := range items.Array() {
		id := item.Get("externalId")
		if !id.Exists() {
			id = item.Get("id")
		}
		if id.String() == "" {
			continue
		}
		entry := domain.CatalogEntry{
			ExternalID: id.String(),
			Title:      item.Get("title").String(),
			Price:      item.Get("price").Float(),
		}
		if attrs, ok := item.Get("attributes").Value().(map[string]interface{}); ok {
			entry.Attributes = attrs
		}
		if ts := item.Get("updatedAt"); ts.Exists() {
			entry.UpdatedAt = ts.Time().UTC()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Connector) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}

func (c *Connector) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
