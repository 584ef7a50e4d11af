// Package resolver is the HTTP client for the media-resolver service, which
// turns free-form playback requests into streamable tracks.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type resolveResponse struct {
	Title       string `json:"title"`
	DurationSec int    `json:"duration_sec"`
	StreamURL   string `json:"stream_url"`
}

// Resolve asks the resolver service for a playable track. All failures are
// *domain.ResolutionError; none of them affect session state.
func (c *Client) Resolve(ctx context.Context, query string) (*domain.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &domain.ResolutionError{Query: query, Reason: "empty request"}
	}

	u := c.baseURL + "/resolve?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &domain.ResolutionError{Query: query, Reason: "bad request", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.ResolutionError{Query: query, Reason: "resolver unreachable", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.ResolutionError{Query: query, Reason: "no match"}
	case resp.StatusCode != http.StatusOK:
		return nil, &domain.ResolutionError{Query: query, Reason: fmt.Sprintf("resolver returned %d", resp.StatusCode)}
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &domain.ResolutionError{Query: query, Reason: "malformed response", Err: err}
	}
	if body.StreamURL == "" {
		return nil, &domain.ResolutionError{Query: query, Reason: "no stream url"}
	}

	return &domain.Track{
		Title:    body.Title,
		Duration: time.Duration(body.DurationSec) * time.Second,
		// The stream client carries no overall timeout: a track plays for
		// minutes and the body is read for its whole duration. Cancellation
		// comes from the play context.
		Source: &httpSource{url: body.StreamURL, client: &http.Client{}},
	}, nil
}

// httpSource opens the resolved stream lazily, at play time. A track can sit
// in the queue for a long while; nothing is fetched until the engine needs it.
type httpSource struct {
	url    string
	client *http.Client
}

func (s *httpSource) Open(ctx context.Context) (domain.FrameReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream fetch returned %d", resp.StatusCode)
	}
	return newFrameStream(resp.Body), nil
}
