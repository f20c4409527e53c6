package fourchan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when the board or thread does not exist (anymore).
// Archived and pruned threads report this.
var ErrNotFound = errors.New("not found")

const userAgent = "boardirc (+https://github.com/awfulava/boardirc)"

// ClientConfig configures a Client. Zero values are replaced by defaults.
type ClientConfig struct {
	// APIBase is the JSON API root, e.g. https://a.4cdn.org.
	APIBase string

	// Media are the hosts used to derive image links.
	Media MediaHosts

	// RequestsPerSecond and Burst throttle every upstream request.
	RequestsPerSecond float64
	Burst             int

	// Retries is the number of additional attempts after a failed fetch.
	Retries int

	// Backoff is the delay before the first retry. It doubles each attempt.
	Backoff time.Duration
}

// Client reads boards and threads from the read-only JSON API.
type Client struct {
	http    *LimitedHTTPClient
	apiBase string
	media   MediaHosts
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

// NewClient returns a client for the given configuration.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://a.4cdn.org"
	}
	if cfg.Media.Image == "" {
		cfg.Media.Image = DefaultMediaHosts.Image
	}
	if cfg.Media.Thumb == "" {
		cfg.Media.Thumb = DefaultMediaHosts.Thumb
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Client{
		http:    NewLimitedHTTPClient(cfg.RequestsPerSecond, cfg.Burst),
		apiBase: strings.TrimSuffix(cfg.APIBase, "/"),
		media:   cfg.Media,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		log:     log.With().Str("component", "fourchan").Logger(),
	}
}

// BoardIndexURL returns the URL of a board's thread index.
func (c *Client) BoardIndexURL(board string) string {
	return fmt.Sprintf("%s/%s/threads.json", c.apiBase, board)
}

// ThreadURL returns the URL of a thread's post list.
func (c *Client) ThreadURL(board string, thread int64) string {
	return fmt.Sprintf("%s/%s/thread/%d.json", c.apiBase, board, thread)
}

// BoardIndex returns every thread of the board with its last modification
// time, flattened across index pages.
func (c *Client) BoardIndex(ctx context.Context, board string) ([]ThreadStub, error) {
	var pages []indexPage
	if err := c.getJSON(ctx, c.BoardIndexURL(board), &pages); err != nil {
		return nil, fmt.Errorf("board index /%s/: %w", board, err)
	}
	var threads []ThreadStub
	for _, p := range pages {
		threads = append(threads, p.Threads...)
	}
	return threads, nil
}

// Thread returns every post of the thread, OP first.
func (c *Client) Thread(ctx context.Context, board string, thread int64) ([]Post, error) {
	var res threadResponse
	if err := c.getJSON(ctx, c.ThreadURL(board, thread), &res); err != nil {
		return nil, fmt.Errorf("thread /%s/%d: %w", board, thread, err)
	}
	for i := range res.Posts {
		res.Posts[i].Board = board
		res.Posts[i].media = &c.media
	}
	return res.Posts, nil
}

// getJSON fetches and decodes url, retrying transient failures with
// exponential backoff.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	delay := c.backoff
	for attempt := 0; ; attempt++ {
		err := c.fetch(ctx, url, v)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil || attempt >= c.retries {
			return err
		}
		c.log.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("Upstream fetch failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) fetch(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, res.Body)
		return ErrNotFound
	case res.StatusCode != http.StatusOK:
		io.Copy(io.Discard, res.Body)
		return fmt.Errorf("bad http status %v", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("bad json: %w", err)
	}
	return nil
}
