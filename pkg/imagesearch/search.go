package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Photo is a search result.
type Photo struct {
	ImageURL        string `json:"image_url" yaml:"image_url"`
	Alt             string `json:"alt,omitempty" yaml:"alt,omitempty"`
	SourceURL       string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Photographer    string `json:"photographer,omitempty" yaml:"photographer,omitempty"`
	PhotographerURL string `json:"photographer_url,omitempty" yaml:"photographer_url,omitempty"`
}

type searchResponse struct {
	Photos []struct {
		Src struct {
			Large2x string `json:"large2x"`
			Large   string `json:"large"`
			Medium  string `json:"medium"`
		} `json:"src"`
		Alt             string `json:"alt"`
		URL             string `json:"url"`
		Photographer    string `json:"photographer"`
		PhotographerURL string `json:"photographer_url"`
	} `json:"photos"`
}

// Search returns the first landscape photo matching query.
func (c *Client) Search(ctx context.Context, query string) (*Photo, error) {
	if c.apiKey == "" {
		return nil, ErrMissingKey
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")

	var resp searchResponse
	if err := c.get(ctx, "/v1/search?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Photos) == 0 {
		return nil, ErrNoResults
	}
	p := resp.Photos[0]
	src := p.Src.Large2x
	if src == "" {
		src = p.Src.Large
	}
	if src == "" {
		src = p.Src.Medium
	}
	if src == "" {
		return nil, ErrNoSource
	}
	return &Photo{
		ImageURL:        src,
		Alt:             p.Alt,
		SourceURL:       p.URL,
		Photographer:    p.Photographer,
		PhotographerURL: p.PhotographerURL,
	}, nil
}

// get performs a GET with retries on rate limits and server errors.
func (c *Client) get(ctx context.Context, path string, result any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err := c.doGet(ctx, path, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if apiErr, ok := AsError(err); !ok || !apiErr.Retryable() {
			return err
		}
	}
	return lastErr
}

func (c *Client) doGet(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("imagesearch: create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("User-Agent", "chronicle-imagesearch-go/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("imagesearch: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("imagesearch: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{HTTPStatus: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("imagesearch: decode response: %w", err)
	}
	return nil
}
