// Package ctclient is the HTTPS client for a single CT log's get-sth and
// get-entries endpoints (C3): retrying, range-clamping, and rate-limit
// aware per §4.3 and §5.
package ctclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	sthTimeout     = 10 * time.Second
	entriesTimeout = 30 * time.Second
)

// PermanentError wraps a non-retryable failure surfaced to the worker: the
// 4xx-other-than-429 case from §4.3/§7.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Client talks to one CT log's RFC 6962 HTTP API. At most one request is
// in flight at a time per Client (§4.3's politeness rule) — callers own
// one Client per log and never share it across workers.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the log rooted at baseURL (no trailing slash).
// The underlying transport is wrapped with otelhttp so every request is a
// traced span, the same instrumentation the teacher applies to inbound
// handlers in ctmonitor/logic.go and ctsubmit/logic.go.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type sthResponse struct {
	TreeSize uint64 `json:"tree_size"`
}

// TreeSize performs get-sth and returns the log's current tree_size.
// Transient errors (timeout, 5xx, connection reset, DNS failure) are
// retried with full-jitter exponential backoff, base 1s capped at 60s,
// reset on success (§5).
func (c *Client) TreeSize(ctx context.Context) (uint64, error) {
	var size uint64
	err := retryLoop(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, sthTimeout)
		defer cancel()

		body, status, _, err := c.get(reqCtx, "/ct/v1/get-sth")
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return classifyStatus(status, body)
		}

		var resp sthResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &PermanentError{Err: fmt.Errorf("decode get-sth response: %w", err)}
		}
		size = resp.TreeSize
		return nil
	})
	return size, err
}

type rawEntry struct {
	LeafInput string `json:"leaf_input"`
	ExtraData string `json:"extra_data"`
}

type entriesResponse struct {
	Entries []rawEntry `json:"entries"`
}

// Entries is the decoded get-entries result: one LeafInput/ExtraData pair
// per returned entry, in ascending index order starting at the requested
// start. len(Entries) may be less than the requested range width.
type Entries struct {
	LeafInput [][]byte
	ExtraData [][]byte
}

// Fetch performs get-entries for the inclusive range [start, end]. The
// server is permitted to return fewer entries than requested; Fetch
// returns whatever non-empty prefix it got. A 200 response with zero
// entries returns a zero-length Entries and nil error — the worker treats
// that as zero progress and backs off (§4.3, §4.7 step 4).
func (c *Client) Fetch(ctx context.Context, start, end uint64) (Entries, error) {
	var out Entries
	err := retryLoop(ctx, func() error {
		out = Entries{}

		reqCtx, cancel := context.WithTimeout(ctx, entriesTimeout)
		defer cancel()

		path := fmt.Sprintf("/ct/v1/get-entries?start=%d&end=%d", start, end)
		body, status, retryAfter, err := c.get(reqCtx, path)
		if err != nil {
			return err
		}
		if status == http.StatusTooManyRequests {
			return &rateLimitedError{retryAfter: retryAfter}
		}
		if status != http.StatusOK {
			return classifyStatus(status, body)
		}

		var resp entriesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &PermanentError{Err: fmt.Errorf("decode get-entries response: %w", err)}
		}
		for _, e := range resp.Entries {
			li, err := base64.StdEncoding.DecodeString(e.LeafInput)
			if err != nil {
				return &PermanentError{Err: fmt.Errorf("decode leaf_input: %w", err)}
			}
			ed, err := base64.StdEncoding.DecodeString(e.ExtraData)
			if err != nil {
				return &PermanentError{Err: fmt.Errorf("decode extra_data: %w", err)}
			}
			out.LeafInput = append(out.LeafInput, li)
			out.ExtraData = append(out.ExtraData, ed)
		}
		return nil
	})
	return out, err
}

func (c *Client) get(ctx context.Context, path string) (body []byte, status int, retryAfter time.Duration, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if reqErr != nil {
		return nil, 0, 0, &PermanentError{Err: reqErr}
	}
	resp, doErr := c.http.Do(req)
	if doErr != nil {
		return nil, 0, 0, doErr // network-level failure: retryable
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, resp.StatusCode, 0, readErr
	}
	return body, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

type rateLimitedError struct{ retryAfter time.Duration }

func (e *rateLimitedError) Error() string { return "rate limited (429)" }

func classifyStatus(status int, body []byte) error {
	if status == http.StatusTooManyRequests {
		return &rateLimitedError{}
	}
	if status >= 500 || status == http.StatusRequestTimeout {
		return fmt.Errorf("transient HTTP status %d: %s", status, truncate(body))
	}
	return &PermanentError{Err: fmt.Errorf("non-retryable HTTP status %d: %s", status, truncate(body))}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// retryLoop drives op with the §5 backoff envelope — base 1s, doubling,
// capped at 60s, full jitter, reset on success — stopping only when op
// returns a *PermanentError or ctx is cancelled. Transient failures retry
// forever, per §7's "Transient network" and "Rate limited" policy rows;
// the worker's own loop is the outer bound on how long that's tolerated.
func retryLoop(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.RandomizationFactor = 0 // jitter is applied below, over [0, interval]
	b.MaxElapsedTime = 0      // no cap; only PermanentError or ctx stops us
	b.Reset()                 // restart from InitialInterval set above

	for {
		err := op()
		if err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm
		}

		wait := time.Duration(rand.Int63n(int64(b.NextBackOff()) + 1)) // full jitter
		var rle *rateLimitedError
		if errors.As(err, &rle) && rle.retryAfter > 0 {
			wait = rle.retryAfter
		}

		log.Printf("[ctclient] transient error, retrying in %s: %v", wait, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
