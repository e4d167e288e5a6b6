// Package embedcheck decides whether a site can be shown inside an iframe
// by looking at the framing headers it returns for a HEAD request.
package embedcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const userAgent = "Mozilla/5.0 (compatible; dles-embed-check/1.0)"

// Blocked reports whether the headers forbid third-party framing.
func Blocked(header http.Header) bool {
	switch strings.ToLower(strings.TrimSpace(header.Get("X-Frame-Options"))) {
	case "deny", "sameorigin":
		return true
	}
	for _, csp := range header.Values("Content-Security-Policy") {
		sources, ok := frameAncestors(csp)
		if !ok {
			continue
		}
		allowed := false
		for _, source := range sources {
			if source == "*" {
				allowed = true
				break
			}
		}
		if !allowed {
			return true
		}
	}
	return false
}

// frameAncestors returns the sources of the frame-ancestors directive, if
// the policy has one.
func frameAncestors(policy string) ([]string, bool) {
	for _, directive := range strings.Split(policy, ";") {
		fields := strings.Fields(directive)
		if len(fields) == 0 {
			continue
		}
		if strings.EqualFold(fields[0], "frame-ancestors") {
			return fields[1:], true
		}
	}
	return nil, false
}

// Result is the outcome of checking one URL. Err is set when the request
// itself failed; Blocked is meaningless in that case.
type Result struct {
	Blocked bool
	Err     error
}

type Checker struct {
	client  *http.Client
	timeout time.Duration
}

// NewChecker builds a checker. A nil client uses a dedicated client that
// does not share state with http.DefaultClient.
func NewChecker(client *http.Client, timeout time.Duration) *Checker {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{client: client, timeout: timeout}
}

// Check issues a HEAD request bounded by the checker timeout.
func (c *Checker) Check(ctx context.Context, url string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Err: fmt.Errorf("timed out after %s", c.timeout)}
		}
		return Result{Err: err}
	}
	_ = resp.Body.Close()
	return Result{Blocked: Blocked(resp.Header)}
}

// Target is one URL to scan, identified by the caller's key.
type Target struct {
	ID  string
	URL string
}

// Outcome pairs a target with its result.
type Outcome struct {
	Target
	Result
}

// Scan checks every target with at most concurrency requests in flight.
// Individual failures are reported in the outcomes and never stop the
// scan. Outcomes keep the order of targets.
func (c *Checker) Scan(ctx context.Context, targets []Target, concurrency int) []Outcome {
	if concurrency <= 0 {
		concurrency = 1
	}
	outcomes := make([]Outcome, len(targets))
	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, target := range targets {
		group.Go(func() error {
			result := c.Check(gctx, target.URL)
			mu.Lock()
			outcomes[i] = Outcome{Target: target, Result: result}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}
