package fourchan

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// LimitedHTTPClient performs throttled requests against the upstream API. The
// zero value is not valid for use.
type LimitedHTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewLimitedHTTPClient returns a client allowing perSecond requests on
// average with the given burst.
func NewLimitedHTTPClient(perSecond float64, burst int) *LimitedHTTPClient {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &LimitedHTTPClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Do waits until the client is within rate limits and then performs the request.
func (c *LimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	r := c.limiter.Reserve()
	if !r.OK() {
		return nil, errors.New("invalid limiter configuration")
	}
	select {
	case <-req.Context().Done():
		r.Cancel()
		return nil, req.Context().Err()
	case <-time.After(r.Delay()):
		return c.client.Do(req)
	}
}
