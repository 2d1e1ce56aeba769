// Package sanity is a minimal client for the Sanity HTTP query API.
package sanity

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

	"github.com/rs/zerolog"

	"github.com/rshade/contentloader/internal/engine/staleness"
)

// Defaults for Config.
const (
	DefaultAPIVersion = "2023-05-03"
	DefaultTimeout    = 30 * time.Second

	// maxGetURLLength is the longest request URL sent as GET; longer queries
	// are POSTed as a JSON body.
	maxGetURLLength = 11264

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4096
)

// ErrEmptyQuery is returned by Fetch when called without query text.
var ErrEmptyQuery = errors.New("incorrect query passed to fetch")

// Config holds the connection settings of a project dataset.
type Config struct {
	ProjectID   string
	Dataset     string
	APIVersion  string
	Token       string
	UseCDN      bool
	Perspective string
	Timeout     time.Duration

	// BaseURL overrides the derived API host, e.g. for tests or proxies.
	BaseURL string
}

var _ staleness.LatestUpdater = (*Client)(nil)

// Client runs GROQ queries against one dataset.
type Client struct {
	HTTPClient *http.Client

	endpoint string
	token    string
	persp    string
	logger   zerolog.Logger
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("sanity api returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("sanity api returned HTTP %d: %s", e.StatusCode, e.Description)
}

// New creates a client from cfg.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" && cfg.ProjectID == "" {
		return nil, errors.New("sanity: project id is required")
	}
	if cfg.Dataset == "" {
		return nil, errors.New("sanity: dataset is required")
	}
	apiVersion := strings.TrimPrefix(cfg.APIVersion, "v")
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		host := "api"
		if cfg.UseCDN {
			host = "apicdn"
		}
		base = fmt.Sprintf("https://%s.%s.sanity.io", cfg.ProjectID, host)
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		endpoint:   fmt.Sprintf("%s/v%s/data/query/%s", base, apiVersion, url.PathEscape(cfg.Dataset)),
		token:      cfg.Token,
		persp:      cfg.Perspective,
		logger:     logger.With().Str("component", "sanity").Logger(),
	}, nil
}

// Endpoint returns the query endpoint URL without parameters.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch runs query and returns the raw "result" member of the response.
func (c *Client) Fetch(ctx context.Context, query string) (json.RawMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	req, err := c.newQueryRequest(ctx, query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying sanity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, decodeAPIError(resp)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		MS     int             `json:"ms"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}
	if envelope.Result == nil {
		envelope.Result = json.RawMessage("null")
	}

	c.logger.Debug().
		Int("server_ms", envelope.MS).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(envelope.Result)).
		Msg("query completed")
	return envelope.Result, nil
}

// newQueryRequest builds a GET request, or a POST with a JSON body when the
// encoded query would make the URL too long.
func (c *Client) newQueryRequest(ctx context.Context, query string) (*http.Request, error) {
	params := url.Values{}
	if c.persp != "" {
		params.Set("perspective", c.persp)
	}
	postURL := c.endpoint
	if len(params) > 0 {
		postURL += "?" + params.Encode()
	}
	params.Set("query", query)
	getURL := c.endpoint + "?" + params.Encode()

	var (
		req *http.Request
		err error
	)
	if len(getURL) <= maxGetURLLength {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	} else {
		body, marshalErr := json.Marshal(map[string]string{"query": query})
		if marshalErr != nil {
			return nil, fmt.Errorf("encoding query body: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating query request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// LatestUpdate returns the most recent _updatedAt across the dataset, or ""
// when the dataset is empty.
func (c *Client) LatestUpdate(ctx context.Context) (string, error) {
	raw, err := c.Fetch(ctx, staleness.LatestUpdateQuery)
	if err != nil {
		return "", err
	}
	var ts string
	if json.Unmarshal(raw, &ts) != nil {
		return "", nil
	}
	return ts, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Error struct {
			Description string `json:"description"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Description = payload.Error.Description
		if apiErr.Description == "" {
			apiErr.Description = payload.Message
		}
	}
	if apiErr.Description == "" {
		apiErr.Description = strings.TrimSpace(string(body))
	}
	return apiErr
}
