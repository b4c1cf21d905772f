// Package search queries the Tavily web search API for the assistant.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"tripgen/internal/common/config"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
)

const maxSnippetLength = 500

var whitespace = regexp.MustCompile(`\s+`)

type Source struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

type Result struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Sources []Source `json:"sources"`
	Cached  bool     `json:"cached,omitempty"`
}

type Client struct {
	config config.WebSearchConfig
	client *http.Client
	cache  *Cache
	logger logger.Logger
}

// NewClient builds a Tavily client. cache may be nil.
func NewClient(cfg config.WebSearchConfig, cache *Cache, log logger.Logger) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: config.GetDuration(cfg.Timeout)},
		cache:  cache,
		logger: log.With(map[string]interface{}{"component": "web_search"}),
	}
}

// Search runs query, returning at most maxResults sources ordered by relevance.
// maxResults <= 0 uses the configured default.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (*Result, error) {
	query = whitespace.ReplaceAllString(strings.TrimSpace(query), " ")
	if query == "" {
		return nil, apperrors.NewValidationError("search query is empty")
	}
	if maxResults <= 0 || maxResults > 10 {
		maxResults = c.config.MaxResults
	}

	if cached, ok := c.cache.Get(ctx, query, maxResults); ok {
		cached.Cached = true
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(c.config.Timeout))
	defer cancel()

	result, err := c.execute(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	c.cache.Set(ctx, query, maxResults, result)
	c.logger.Info("web search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(result.Sources),
	})
	return result, nil
}

func (c *Client) execute(ctx context.Context, query string, maxResults int) (*Result, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"query":          query,
		"max_results":    maxResults,
		"search_depth":   "basic",
		"include_answer": true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewWebSearchFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperrors.NewWebSearchTimeoutError()
		}
		return nil, apperrors.NewWebSearchFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewWebSearchFailedError(fmt.Errorf("search API returned %d", resp.StatusCode))
	}

	var apiResponse struct {
		Answer  string `json:"answer"`
		Results []struct {
			URL     string  `json:"url"`
			Title   string  `json:"title"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		if isTimeout(ctx, err) {
			return nil, apperrors.NewWebSearchTimeoutError()
		}
		return nil, apperrors.NewWebSearchFailedError(fmt.Errorf("decode error: %w", err))
	}

	seen := make(map[string]bool)
	sources := make([]Source, 0, len(apiResponse.Results))
	for _, item := range apiResponse.Results {
		if item.URL == "" || seen[item.URL] {
			continue
		}
		seen[item.URL] = true
		sources = append(sources, Source{
			URL:       item.URL,
			Title:     strings.TrimSpace(item.Title),
			Snippet:   cleanSnippet(item.Content),
			Relevance: item.Score,
		})
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Relevance > sources[j].Relevance
	})
	if len(sources) > maxResults {
		sources = sources[:maxResults]
	}

	return &Result{Query: query, Answer: strings.TrimSpace(apiResponse.Answer), Sources: sources}, nil
}

func cleanSnippet(s string) string {
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	if len(s) > maxSnippetLength {
		s = s[:maxSnippetLength]
		if i := strings.LastIndexByte(s, ' '); i > maxSnippetLength/2 {
			s = s[:i]
		}
		s += "..."
	}
	return s
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
