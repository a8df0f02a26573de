package utils

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PBH-BTN/pbh-adapter-deluge/config"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

type APIClient struct {
	baseUrl    string
	httpClient *http.Client
	maxRetries int
	minBackoff time.Duration
}

type RequestOptions struct {
	Method      string
	Endpoint    string
	Body        []byte
	ContentType string
	MaxRetries  int
	InitBackoff time.Duration
}

// Creates a new API client for the Deluge web UI at cfg.DelugeUrl.
// Cookies set by the server (the web session) are kept between requests.
func NewAPIClient(cfg *config.Config) *APIClient {
	jar, _ := cookiejar.New(nil)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.SkipVerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &APIClient{
		baseUrl: strings.TrimRight(cfg.DelugeUrl, "/"),
		httpClient: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		maxRetries: cfg.RequestMaxRetries,
		minBackoff: cfg.RequestInitBackoff,
	}
}

func (c *APIClient) BaseUrl() string {
	return c.baseUrl
}

// Jar returns the cookie jar holding the web session.
func (c *APIClient) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// Performs an HTTP request with retry logic.
// Network errors and 5xx responses are retried with exponential backoff.
func (c *APIClient) DoRequest(ctx context.Context, opts RequestOptions) (*http.Response, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = c.maxRetries
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitBackoff == 0 {
		opts.InitBackoff = c.minBackoff
	}
	if opts.InitBackoff <= 0 {
		opts.InitBackoff = time.Second
	}

	url := fmt.Sprintf("%s%s", c.baseUrl, opts.Endpoint)
	b := &backoff.Backoff{
		Min:    opts.InitBackoff,
		Max:    opts.InitBackoff * 16,
		Factor: 2,
	}

	zap.L().Debug("Starting API request",
		zap.String("method", opts.Method),
		zap.String("url", url),
	)

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, opts.Method, url, bytes.NewReader(opts.Body))
		if err != nil {
			zap.L().Error("Failed to create API request",
				zap.String("url", url),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if opts.ContentType != "" {
			req.Header.Set("Content-Type", opts.ContentType)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request canceled: %w", ctx.Err())
			}
			if attempt < opts.MaxRetries {
				wait := b.Duration()
				zap.L().Warn("API request failed, retrying",
					zap.Int("attempt", attempt+1),
					zap.Int("maxRetries", opts.MaxRetries),
					zap.String("url", url),
					zap.Duration("retryIn", wait),
					zap.Error(err),
				)
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			zap.L().Error("API request failed after retries",
				zap.Int("maxRetries", opts.MaxRetries),
				zap.String("url", url),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to fetch data after retries: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			zap.L().Debug("API request successful",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
			)
			return resp, nil
		}

		resp.Body.Close()

		if resp.StatusCode >= 500 && attempt < opts.MaxRetries {
			lastErr = fmt.Errorf("API returned status %s", resp.Status)
			wait := b.Duration()
			zap.L().Warn("Server error, retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("maxRetries", opts.MaxRetries),
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
				zap.Duration("retryIn", wait),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		zap.L().Error("API returned non-retriable status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.String("statusText", resp.Status),
		)
		return nil, fmt.Errorf("API returned status %s", resp.Status)
	}

	zap.L().Error("API request failed after all retries",
		zap.Int("maxRetries", opts.MaxRetries),
		zap.String("url", url),
	)
	return nil, fmt.Errorf("request failed after %d retries: %w", opts.MaxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
