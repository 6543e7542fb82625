package fetchguard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURLAddressMatrix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		url           string
		wantViolation Violation
	}{
		{name: "public https", url: "https://example.com/page"},
		{name: "public http", url: "http://example.com/page"},

		{name: "file scheme", url: "file:///etc/passwd", wantViolation: ViolationScheme},
		{name: "ftp scheme", url: "ftp://example.com/file", wantViolation: ViolationScheme},
		{name: "gopher scheme", url: "gopher://example.com", wantViolation: ViolationScheme},

		{name: "no host", url: "http://", wantViolation: ViolationInvalidURL},

		{name: "loopback v4", url: "http://127.0.0.1/admin", wantViolation: ViolationPrivateAddress},
		{name: "loopback v4 high", url: "http://127.8.9.10/", wantViolation: ViolationPrivateAddress},
		{name: "loopback v6", url: "http://[::1]/admin", wantViolation: ViolationPrivateAddress},
		{name: "localhost name", url: "http://localhost:8080/", wantViolation: ViolationPrivateAddress},
		{name: "rfc1918 ten", url: "http://10.0.0.5/", wantViolation: ViolationPrivateAddress},
		{name: "rfc1918 one seventy two", url: "http://172.16.44.2/", wantViolation: ViolationPrivateAddress},
		{name: "rfc1918 one ninety two", url: "http://192.168.1.1/router", wantViolation: ViolationPrivateAddress},
		{name: "cloud metadata endpoint", url: "http://169.254.169.254/latest/meta-data/", wantViolation: ViolationPrivateAddress},
		{name: "link local v6", url: "http://[fe80::1]/", wantViolation: ViolationPrivateAddress},
		{name: "unspecified v4", url: "http://0.0.0.0/", wantViolation: ViolationPrivateAddress},
		{name: "v4 mapped v6 loopback", url: "http://[::ffff:127.0.0.1]/", wantViolation: ViolationPrivateAddress},
		{name: "v4 mapped v6 private", url: "http://[::ffff:10.0.0.1]/", wantViolation: ViolationPrivateAddress},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateURL(tc.url)
			if tc.wantViolation == "" {
				assert.NoError(t, err)
				return
			}

			ve, ok := IsValidationError(err)
			require.True(t, ok, "expected a validation error, got %v", err)
			assert.Equal(t, tc.wantViolation, ve.Violation)
		})
	}
}

// testGuard builds a guard whose HTTP client can reach loopback test
// servers, which the production dialer refuses by design.
func testGuard(client *http.Client, maxBytes int64) *Guard {
	return &Guard{client: client, maxBytes: maxBytes}
}

func TestFetchContentTypePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		wantAllowed bool
	}{
		{name: "html allowed", contentType: "text/html; charset=utf-8", wantAllowed: true},
		{name: "xhtml allowed", contentType: "application/xhtml+xml", wantAllowed: true},
		{name: "plain text allowed", contentType: "text/plain", wantAllowed: true},
		{name: "json rejected", contentType: "application/json", wantAllowed: false},
		{name: "pdf rejected", contentType: "application/pdf", wantAllowed: false},
		{name: "octet stream rejected", contentType: "application/octet-stream", wantAllowed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = w.Write([]byte("body"))
			}))
			defer srv.Close()

			g := testGuard(srv.Client(), DefaultMaxBytes)
			content, err := g.fetch(context.Background(), srv.URL)

			if tc.wantAllowed {
				require.NoError(t, err)
				assert.Equal(t, []byte("body"), content.Body)
				return
			}

			ve, ok := IsValidationError(err)
			require.True(t, ok, "expected a validation error, got %v", err)
			assert.Equal(t, ViolationContentType, ve.Violation)
		})
	}
}

func TestFetchSizeCap(t *testing.T) {
	t.Parallel()

	t.Run("declared content length past the cap rejects before reading", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Length", "1000")
			_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
		}))
		defer srv.Close()

		g := testGuard(srv.Client(), 64)
		_, err := g.fetch(context.Background(), srv.URL)

		ve, ok := IsValidationError(err)
		require.True(t, ok, "expected a validation error, got %v", err)
		assert.Equal(t, ViolationTooLarge, ve.Violation)
	})

	t.Run("streamed body past the cap rejects even without a declared length", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			// Flush to force chunked encoding; no Content-Length header.
			flusher := w.(http.Flusher)
			for i := 0; i < 10; i++ {
				_, _ = w.Write([]byte(strings.Repeat("x", 100)))
				flusher.Flush()
			}
		}))
		defer srv.Close()

		g := testGuard(srv.Client(), 64)
		_, err := g.fetch(context.Background(), srv.URL)

		ve, ok := IsValidationError(err)
		require.True(t, ok, "expected a validation error, got %v", err)
		assert.Equal(t, ViolationTooLarge, ve.Violation)
	})

	t.Run("body at the cap passes", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		}))
		defer srv.Close()

		g := testGuard(srv.Client(), 64)
		content, err := g.fetch(context.Background(), srv.URL)

		require.NoError(t, err)
		assert.Len(t, content.Body, 64)
	})
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond

	g := testGuard(client, DefaultMaxBytes)
	_, err := g.fetch(context.Background(), srv.URL)

	ve, ok := IsValidationError(err)
	require.True(t, ok, "expected a validation error, got %v", err)
	assert.Equal(t, ViolationTimeout, ve.Violation)
}

func TestFetchRejectsBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	g := testGuard(srv.Client(), DefaultMaxBytes)
	_, err := g.fetch(context.Background(), srv.URL)

	require.Error(t, err)
	_, ok := IsValidationError(err)
	assert.False(t, ok, "status errors are plain errors so they retry")
}

func TestFetchBlocksMetadataEndpointEndToEnd(t *testing.T) {
	t.Parallel()

	g := New(Config{Timeout: time.Second})
	_, err := g.Fetch(context.Background(), "http://169.254.169.254/latest/meta-data/")

	ve, ok := IsValidationError(err)
	require.True(t, ok, "expected a validation error, got %v", err)
	assert.Equal(t, ViolationPrivateAddress, ve.Violation)
}
