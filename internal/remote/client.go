// Package remote talks to a centralized recollect server. The engine uses it
// as the first, strict step of retrieval; the CLI uses it to search and to
// follow processing of uploaded media.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/llm"
	"github.com/scrypster/recollect/pkg/types"
)

// ErrNotFound is returned when the remote server does not know a record.
var ErrNotFound = errors.New("remote: not found")

const (
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// Client is an HTTP client for the recollect API.
// It is safe for concurrent use.
type Client struct {
	baseURL      string
	token        string
	userID       string
	timeout      time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	client       *http.Client
	breaker      *llm.CircuitBreaker
}

// NewClient creates a client for cfg.URL. Zero durations take the defaults.
func NewClient(cfg config.RemoteConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote: url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("remote: invalid url %q: %w", cfg.URL, err)
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		token:        cfg.APIToken,
		userID:       cfg.UserID,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		breaker: llm.NewCircuitBreakerWithConfig(llm.CircuitBreakerConfig{
			Name:                 "remote",
			MaxFailures:          3,
			Timeout:              30 * time.Second,
			HalfOpenMaxSuccesses: 2,
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
		}),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = defaultPollTimeout
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c, nil
}

// Chat asks the remote server a question.
func (c *Client) Chat(ctx context.Context, question string) (*types.ChatResponse, error) {
	var out types.ChatResponse
	req := types.ChatRequest{Question: question, UserID: c.userID}
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search lists the remote records matching query.
func (c *Client) Search(ctx context.Context, query string) (*types.SearchResponse, error) {
	var out types.SearchResponse
	req := types.SearchRequest{Query: query, UserID: c.userID}
	if err := c.do(ctx, http.MethodPost, "/api/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the processing status of a remote record.
func (c *Client) Status(ctx context.Context, mediaID string) (*types.MediaStatusResponse, error) {
	var out types.MediaStatusResponse
	path := "/api/media/" + url.PathEscape(mediaID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForProcessing polls Status until the record reaches a terminal status.
// On timeout it returns the last status seen and false; transient poll errors
// are retried until the deadline.
func (c *Client) WaitForProcessing(ctx context.Context, mediaID string) (*types.MediaStatusResponse, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var last *types.MediaStatusResponse
	for {
		st, err := c.Status(ctx, mediaID)
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, false, err
		case err == nil:
			last = st
			if st.Status.IsTerminal() {
				return st, true, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, false, nil
		case <-ticker.C:
		}
	}
}

// Lookup asks the remote server and converts its answer into a SearchResult.
// The caller decides whether the answer is conclusive.
func (c *Client) Lookup(ctx context.Context, question string) (*types.SearchResult, error) {
	resp, err := c.Chat(ctx, question)
	if err != nil {
		return nil, err
	}

	res := &types.SearchResult{
		Query:           question,
		ExpandedTerms:   []string{},
		Answer:          resp.Answer,
		ConfidenceLabel: resp.Confidence,
		Path:            types.PathRemote,
	}
	if resp.HasProof {
		res.Proof = resp.Proof
	}
	return res, nil
}

// do sends one request through the circuit breaker and decodes the JSON reply into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, c.send(ctx, method, path, body, out)
	})
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
