package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Fatal run errors. Classification must never proceed against an
// incomplete or unauthenticated picture of the library.
var (
	ErrAuth               = errors.New("library: credentials rejected")
	ErrServiceUnavailable = errors.New("library: service unavailable")
)

const (
	defaultBaseURL  = "https://api.zotero.org"
	apiVersion      = "3"
	defaultPageSize = 100
)

// ClientOptions configures the API client.
type ClientOptions struct {
	BaseURL     string
	LibraryID   string
	LibraryType string // "user" or "group"
	APIKey      string
	HTTPClient  *http.Client
	PageSize    int
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RequestsPerSecond bounds the client-side request rate. The hosted
	// API enforces its own limits; staying under them avoids Backoff
	// headers in the first place.
	RequestsPerSecond float64
}

// Client pages through a library's attachment records.
type Client struct {
	baseURL     string
	libraryID   string
	libraryType string
	apiKey      string
	httpClient  *http.Client
	pageSize    int
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	limiter     *rate.Limiter
}

// NewClient creates a new API client with sane defaults.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	libraryType := opts.LibraryType
	if libraryType == "" {
		libraryType = "user"
	}
	return &Client{
		baseURL:     baseURL,
		libraryID:   opts.LibraryID,
		libraryType: libraryType,
		apiKey:      opts.APIKey,
		httpClient:  httpClient,
		pageSize:    pageSize,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Page is one page of attachment records. Next is the start offset of the
// following page, or -1 once the listing is drained.
type Page struct {
	Items []Attachment
	Next  int
}

// Lister is the read-only capability the index builder consumes.
type Lister interface {
	ListAttachments(ctx context.Context, start int) (Page, error)
}

// apiItem mirrors the wire shape of one item. Untyped data never leaves
// this package; records are normalized into Attachment immediately.
type apiItem struct {
	Key  string `json:"key"`
	Data struct {
		Key          string `json:"key"`
		ParentItem   string `json:"parentItem"`
		ItemType     string `json:"itemType"`
		LinkMode     string `json:"linkMode"`
		Title        string `json:"title"`
		ContentType  string `json:"contentType"`
		Path         string `json:"path"`
		Filename     string `json:"filename"`
		DateModified string `json:"dateModified"`
	} `json:"data"`
}

// ListAttachments fetches one page of attachment items starting at the
// given offset. Transient failures are retried with capped backoff;
// rejected credentials and retry exhaustion are fatal.
func (c *Client) ListAttachments(ctx context.Context, start int) (Page, error) {
	url := fmt.Sprintf("%s/%ss/%s/items?itemType=attachment&format=json&limit=%d&start=%d",
		c.baseURL, c.libraryType, c.libraryID, c.pageSize, start)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return Page{}, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return Page{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Page{}, err
		}
		req.Header.Set("Zotero-API-Version", apiVersion)
		if c.apiKey != "" {
			req.Header.Set("Zotero-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return Page{}, ctx.Err()
			}
			lastErr = err
			continue
		}

		page, retry, err := c.handleResponse(resp, start)
		if err == nil {
			return page, nil
		}
		if !retry {
			return Page{}, err
		}
		lastErr = err

		// The service asks clients to pause via Backoff / Retry-After.
		if d := backoffHint(resp); d > 0 {
			if err := c.sleep(ctx, d); err != nil {
				return Page{}, err
			}
		}
	}

	return Page{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
}

func (c *Client) handleResponse(resp *http.Response, start int) (Page, bool, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Page{}, false, fmt.Errorf("%w (HTTP %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Page{}, true, fmt.Errorf("library: HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Page{}, false, fmt.Errorf("library: unexpected HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var items []apiItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return Page{}, true, fmt.Errorf("library: decode page at %d: %w", start, err)
	}

	page := Page{Items: make([]Attachment, 0, len(items)), Next: -1}
	for _, it := range items {
		page.Items = append(page.Items, normalizeItem(it))
	}

	total, _ := strconv.Atoi(resp.Header.Get("Total-Results"))
	next := start + len(items)
	if len(items) == c.pageSize && (total == 0 || next < total) {
		page.Next = next
	}
	return page, false, nil
}

func normalizeItem(it apiItem) Attachment {
	key := it.Data.Key
	if key == "" {
		key = it.Key
	}
	mod, _ := time.Parse(time.RFC3339, it.Data.DateModified)
	return Attachment{
		Key:         key,
		ParentKey:   it.Data.ParentItem,
		Mode:        linkModeFromAPI(it.Data.LinkMode),
		Title:       it.Data.Title,
		ContentType: it.Data.ContentType,
		ModTime:     mod,
		RawPath:     it.Data.Path,
		Filename:    it.Data.Filename,
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay << (attempt - 1)
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffHint(resp *http.Response) time.Duration {
	for _, h := range []string{"Backoff", "Retry-After"} {
		if v := resp.Header.Get(h); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}
