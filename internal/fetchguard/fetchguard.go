// Package fetchguard validates and safely retrieves remote URL content on
// behalf of processors. It defends against request forgery (scheme checks,
// private/loopback/link-local address blocking enforced again at dial time
// so DNS rebinding cannot bypass the pre-check) and resource exhaustion
// (request timeout, content-type allow-list, payload size cap enforced on
// both the declared length and the streamed body).
package fetchguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 10 * 1024 * 1024
)

// Violation identifies which guard rejected the fetch.
type Violation string

// Possible violations.
const (
	ViolationScheme         Violation = "scheme_not_allowed"
	ViolationInvalidURL     Violation = "invalid_url"
	ViolationPrivateAddress Violation = "private_address"
	ViolationContentType    Violation = "content_type_not_allowed"
	ViolationTooLarge       Violation = "payload_too_large"
	ViolationTimeout        Violation = "timeout"
)

// ValidationError is a typed, non-retryable rejection of a fetch. Network
// failures that are not policy violations are returned as plain errors so
// callers can retry them.
type ValidationError struct {
	Violation Violation
	Message   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("fetch rejected (%s): %s", e.Violation, e.Message)
}

// IsValidationError reports whether err is a guard rejection and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// allowedContentTypes is the response media-type allow-list.
var allowedContentTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"text/plain":            true,
}

// Content is a successfully fetched and size-checked response body.
type Content struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// Config tunes the guard's limits.
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
}

// Guard performs validated fetches. Construct one per process and share it;
// the underlying transport pools connections.
type Guard struct {
	client   *http.Client
	maxBytes int64
}

// New creates a Guard with the given limits.
func New(cfg Config) *Guard {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	dialer := &net.Dialer{
		Timeout: timeout,
		// Re-check the resolved address at connect time. The URL-level
		// check alone is insufficient: a hostname can resolve publicly
		// during validation and privately at dial time.
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return &ValidationError{
					Violation: ViolationInvalidURL,
					Message:   fmt.Sprintf("unparsable dial address %q", address),
				}
			}
			ip := net.ParseIP(host)
			if ip == nil || isDisallowedIP(ip) {
				return &ValidationError{
					Violation: ViolationPrivateAddress,
					Message:   fmt.Sprintf("address %s is not publicly routable", host),
				}
			}
			return nil
		},
	}

	transport := &http.Transport{
		DialContext:       dialer.DialContext,
		ForceAttemptHTTP2: true,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			// Each hop re-enters ValidateURL so a redirect cannot escape
			// into a private range or a non-HTTP scheme.
			return ValidateURL(req.URL.String())
		},
	}

	return &Guard{
		client:   client,
		maxBytes: maxBytes,
	}
}

// ValidateURL checks a candidate URL against the scheme and address policy
// without fetching it. An unparsable URL is rejected.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{
			Violation: ViolationInvalidURL,
			Message:   fmt.Sprintf("unparsable URL: %v", err),
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &ValidationError{
			Violation: ViolationScheme,
			Message:   fmt.Sprintf("scheme %q is not allowed", parsed.Scheme),
		}
	}

	host := parsed.Hostname()
	if host == "" {
		return &ValidationError{
			Violation: ViolationInvalidURL,
			Message:   "URL has no host",
		}
	}

	// An IP literal is checked directly; a hostname is resolved and every
	// candidate address must be publicly routable.
	if ip := net.ParseIP(host); ip != nil {
		if isDisallowedIP(ip) {
			return &ValidationError{
				Violation: ViolationPrivateAddress,
				Message:   fmt.Sprintf("address %s is not publicly routable", host),
			}
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return &ValidationError{
			Violation: ViolationPrivateAddress,
			Message:   "localhost is not allowed",
		}
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return &ValidationError{
			Violation: ViolationInvalidURL,
			Message:   fmt.Sprintf("host %q does not resolve: %v", host, err),
		}
	}

	for _, ip := range ips {
		if isDisallowedIP(ip) {
			return &ValidationError{
				Violation: ViolationPrivateAddress,
				Message:   fmt.Sprintf("host %q resolves to non-public address %s", host, ip),
			}
		}
	}

	return nil
}

// Fetch validates the URL and retrieves its content under the guard's
// limits. Policy violations come back as *ValidationError; transient
// network failures come back as plain errors.
func (g *Guard) Fetch(ctx context.Context, rawURL string) (*Content, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return g.fetch(ctx, rawURL)
}

// fetch performs the HTTP exchange and response checks after URL validation.
func (g *Guard) fetch(ctx context.Context, rawURL string) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &ValidationError{
			Violation: ViolationInvalidURL,
			Message:   fmt.Sprintf("cannot build request: %v", err),
		}
	}
	req.Header.Set("User-Agent", "docpipe/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		// Surface guard rejections raised inside the transport (dial
		// control, redirect checks) as validation errors.
		if ve, ok := IsValidationError(err); ok {
			return nil, ve
		}
		if isTimeout(err) {
			return nil, &ValidationError{
				Violation: ViolationTimeout,
				Message:   fmt.Sprintf("fetch exceeded deadline: %v", err),
			}
		}
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !allowedContentTypes[mediaType] {
		return nil, &ValidationError{
			Violation: ViolationContentType,
			Message:   fmt.Sprintf("content type %q is not allowed", contentType),
		}
	}

	// Reject on the declared length before reading any body bytes.
	if resp.ContentLength > g.maxBytes {
		return nil, &ValidationError{
			Violation: ViolationTooLarge,
			Message: fmt.Sprintf("declared content length %d exceeds limit %d",
				resp.ContentLength, g.maxBytes),
		}
	}

	// Count bytes while streaming; one byte past the cap aborts the read.
	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, &ValidationError{
				Violation: ViolationTimeout,
				Message:   fmt.Sprintf("fetch exceeded deadline: %v", err),
			}
		}
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > g.maxBytes {
		return nil, &ValidationError{
			Violation: ViolationTooLarge,
			Message:   fmt.Sprintf("response body exceeds limit of %d bytes", g.maxBytes),
		}
	}

	return &Content{
		Body:        body,
		ContentType: mediaType,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// isDisallowedIP reports whether the address falls in any range the guard
// blocks: loopback, RFC 1918 private, link-local (v4 and v6), unspecified,
// and the v4-mapped v6 forms of all of those.
func isDisallowedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
