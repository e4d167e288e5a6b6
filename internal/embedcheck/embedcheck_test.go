package embedcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

func TestBlocked(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{"deny", header("x-frame-options", "DENY"), true},
		{"sameorigin", header("X-Frame-Options", " sameorigin "), true},
		{"allow-from is ignored", header("X-Frame-Options", "ALLOW-FROM https://a.example"), false},
		{"csp self", header("content-security-policy", "frame-ancestors 'self'"), true},
		{"csp none", header("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'"), true},
		{"csp wildcard", header("content-security-policy", "frame-ancestors *"), false},
		{"csp wildcard among sources", header("Content-Security-Policy", "frame-ancestors https://a.example *"), false},
		{"csp without frame-ancestors", header("Content-Security-Policy", "default-src 'self'"), false},
		{"no headers", http.Header{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Blocked(tc.header))
		})
	}
}

func TestCheckAgainstServer(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.URL.Path == "/blocked" {
			w.Header().Set("X-Frame-Options", "DENY")
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	checker := NewChecker(srv.Client(), time.Second)
	blocked := checker.Check(context.Background(), srv.URL+"/blocked")
	require.NoError(t, blocked.Err)
	assert.True(t, blocked.Blocked)

	open := checker.Check(context.Background(), srv.URL+"/open")
	require.NoError(t, open.Err)
	assert.False(t, open.Blocked)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodHead, http.MethodHead}, methods)
}

func TestCheckTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	checker := NewChecker(srv.Client(), 50*time.Millisecond)
	result := checker.Check(context.Background(), srv.URL)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "timed out")
}

func TestScanKeepsOrderAndReportsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a" {
			w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		}
	}))
	t.Cleanup(srv.Close)

	targets := []Target{
		{ID: "1", URL: srv.URL + "/a"},
		{ID: "2", URL: "http://127.0.0.1:1/unreachable"},
		{ID: "3", URL: srv.URL + "/b"},
	}
	outcomes := NewChecker(nil, time.Second).Scan(context.Background(), targets, 2)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "1", outcomes[0].ID)
	assert.True(t, outcomes[0].Blocked)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
	assert.False(t, outcomes[2].Blocked)
}
