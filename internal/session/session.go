// Package session owns the one process-wide HTTP client used for every
// request against the provider: the sliding-token cookie jar, default
// headers, and the signals (AuthFailed, TransportError) the rest of the
// pipeline reacts to.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mfathy/safaribooks/internal/safarierr"
)

// Default headers sent on every request, matching the provider's expected
// desktop browser fingerprint. These are fixed, not configurable.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.5"

	// DefaultConnectTimeout and DefaultReadTimeout form the default
	// (connect, read) timeout tuple for the shared HTTP client.
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second

	// DefaultSaveInterval is the default N in "persist cookies every N
	// successful book downloads".
	DefaultSaveInterval = 5
)

// ErrInvalidCookieFile is returned when a cookie file is present but is
// not a non-empty JSON object.
var ErrInvalidCookieFile = fmt.Errorf("cookie file must contain a non-empty JSON object")

// Session is the single authenticated HTTP client shared by the whole
// pipeline. All fields touching the cookie jar or the cookie file are
// guarded by their own mutex.
type Session struct {
	client *http.Client

	jarMu   sync.Mutex
	cookies map[string]string

	fileMu       sync.Mutex
	cookieFile   string
	saveInterval int
	sinceSave    int
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithCookieFile sets the path cookies are loaded from and persisted to.
func WithCookieFile(path string) Option {
	return func(s *Session) { s.cookieFile = path }
}

// WithSaveInterval overrides the default cookie-persistence interval.
func WithSaveInterval(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.saveInterval = n
		}
	}
}

// WithProxy routes every request through a SOCKS5 proxy at addr (e.g. a
// local Tor daemon), useful when the provider rate-limits by source IP.
func WithProxy(addr string) Option {
	return func(s *Session) {
		if addr == "" {
			return
		}
		if transport, err := proxyTransport(addr); err == nil {
			s.client.Transport = transport
		}
	}
}

// WithHTTPClient overrides the underlying *http.Client, primarily for
// tests that want to point at an httptest.Server without touching the
// real network stack.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// New creates a Session. If a cookie file is configured and exists, it is
// loaded immediately; a configured file that is missing starts with an
// empty jar, matching the provider's "first run" behavior.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		client:       &http.Client{Timeout: DefaultConnectTimeout + DefaultReadTimeout},
		cookies:      make(map[string]string),
		saveInterval: DefaultSaveInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cookieFile != "" {
		if _, err := os.Stat(s.cookieFile); err == nil {
			cookies, err := LoadCookieFile(s.cookieFile)
			if err != nil {
				return nil, err
			}
			s.cookies = cookies
		}
	}

	return s, nil
}

// LoadCookieFile reads a cookie file (name -> value JSON object). An empty
// file, an empty object, or a non-object payload is rejected.
func LoadCookieFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrInvalidCookieFile
	}

	var cookies map[string]string
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookieFile, err)
	}
	if len(cookies) == 0 {
		return nil, ErrInvalidCookieFile
	}
	return cookies, nil
}

// Cookies returns a snapshot of the current cookie jar.
func (s *Session) Cookies() map[string]string {
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	out := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		out[k] = v
	}
	return out
}

func (s *Session) mergeCookies(resp *http.Response) {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	for _, c := range cookies {
		s.cookies[c.Name] = c.Value
	}
}

func (s *Session) cookieHeader() string {
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	parts := make([]string, 0, len(s.cookies))
	for name, value := range s.cookies {
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, "; ")
}

// GetOptions customizes one request.
type GetOptions struct {
	Headers        map[string]string
	Timeout        time.Duration
	ExpectJSON     bool // an HTML body in response signals AuthFailed
}

// Response is the subset of an HTTP response the rest of the pipeline
// needs; the body is fully read so AuthFailed-by-body-sniffing can happen
// without the caller managing a live reader.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get issues an authenticated GET. On success the cookie jar is updated
// with every Set-Cookie header in the response, under the jar mutex.
func (s *Session) Get(ctx context.Context, url string, opts *GetOptions) (*Response, error) {
	if opts == nil {
		opts = &GetOptions{}
	}

	timeout := DefaultConnectTimeout + DefaultReadTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, safarierr.New(safarierr.ParseError, "build request", err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", DefaultAccept)
	req.Header.Set("Accept-Language", DefaultAcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Connection", "keep-alive")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if cookieHeader := s.cookieHeader(); cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, safarierr.New(safarierr.TransportError, "request timed out", err)
		}
		return nil, safarierr.New(safarierr.TransportError, "request failed", err)
	}
	defer resp.Body.Close()

	s.mergeCookies(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, safarierr.New(safarierr.TransportError, "reading response body", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, safarierr.New(safarierr.AuthFailed, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if opts.ExpectJSON && looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		return nil, safarierr.New(safarierr.AuthFailed, "expected JSON, received HTML", nil)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(trimmed, []byte("<!DOCTYPE")) || bytes.HasPrefix(trimmed, []byte("<html"))
}

// Validate issues a single lightweight GET against testEndpoint and
// signals AuthFailed if the session is unauthenticated or the
// subscription has expired, before the job controller starts the main
// pipeline.
func (s *Session) Validate(ctx context.Context, testEndpoint string) error {
	resp, err := s.Get(ctx, testEndpoint, &GetOptions{})
	if err != nil {
		return err
	}
	if bytes.Contains(resp.Body, []byte(`"user_type":"Expired"`)) {
		return safarierr.New(safarierr.AuthFailed, "subscription expired", nil)
	}
	return nil
}

// RecordBookDownloaded increments the books-since-last-save counter and
// persists the cookie jar once the configured interval is reached.
func (s *Session) RecordBookDownloaded() error {
	s.fileMu.Lock()
	s.sinceSave++
	shouldSave := s.sinceSave >= s.saveInterval
	if shouldSave {
		s.sinceSave = 0
	}
	s.fileMu.Unlock()

	if shouldSave {
		return s.SaveCookies()
	}
	return nil
}

// SaveCookies writes the cookie jar (name -> value only) to the cookie
// file via atomic rename. A no-op if no cookie file is configured.
func (s *Session) SaveCookies() error {
	if s.cookieFile == "" {
		return nil
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.writeCookiesLocked()
}

// Close flushes the cookie jar once more, matching the provider's
// flush-on-exit behavior.
func (s *Session) Close() error {
	return s.SaveCookies()
}

func (s *Session) writeCookiesLocked() error {
	cookies := s.Cookies()
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}

	dir := filepath.Dir(s.cookieFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cookie directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cookie file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp cookie file: %w", err)
	}
	if err := os.Rename(tmpPath, s.cookieFile); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename cookie file: %w", err)
	}
	return nil
}
