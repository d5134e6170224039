package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/net/proxy"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	defaultBaseURL   = "https://www.instagram.com"

	// webAppID is the X-IG-App-ID the instagram.com web client sends.
	webAppID = "936619743392459"
)

// Scraper is the Instagram client. It talks to the web JSON API over pure
// HTTP and only launches a headless browser when a login challenge needs one.
type Scraper struct {
	client    *http.Client
	proxy     string
	userAgent string
	isLogged  bool
	baseURL   string // defaults to "https://www.instagram.com"

	// Browser for challenge logins only.
	browser         *rod.Browser
	page            *rod.Page
	browserMu       sync.Mutex
	browserFallback bool

	// Minimum spacing between API requests.
	requestDelay time.Duration
	lastRequest  time.Time
	requestMu    sync.Mutex

	// Account state carried in Settings. Guarded by stateMu: one client is
	// shared by concurrent requests while logins rewrite it.
	stateMu   sync.RWMutex
	uuids     DeviceIDs
	userID    string
	username  string
	lastLogin time.Time
}

// defaultTransport returns an http.Transport with connection pooling,
// keep-alive, and TLS handshake caching.
func defaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// New creates a Scraper with sensible defaults and a fresh set of device ids.
// Nothing touches the network until Login or a fetch is called.
func New() *Scraper {
	jar, _ := cookiejar.New(nil)
	return &Scraper{
		client: &http.Client{
			Jar:       jar,
			Timeout:   15 * time.Second,
			Transport: defaultTransport(),
		},
		baseURL:      defaultBaseURL,
		userAgent:    defaultUserAgent,
		requestDelay: 300 * time.Millisecond,
		uuids:        newDeviceIDs(),
	}
}

// WithRequestDelay sets the minimum delay between API requests.
func (s *Scraper) WithRequestDelay(d time.Duration) *Scraper {
	s.requestDelay = d
	return s
}

// WithBrowserFallback enables a headless-browser login when the web login
// endpoint answers with a checkpoint challenge.
func (s *Scraper) WithBrowserFallback(enabled bool) *Scraper {
	s.browserFallback = enabled
	return s
}

// SetProxy configures an HTTP/HTTPS or SOCKS5 proxy for the HTTP client.
// Connection pooling and keep-alive settings are preserved.
func (s *Scraper) SetProxy(proxyAddr string) error {
	if proxyAddr == "" {
		s.client.Transport = defaultTransport()
		s.proxy = ""
		return nil
	}

	u, err := url.Parse(proxyAddr)
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}

	base := defaultTransport()

	switch u.Scheme {
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
		s.client.Transport = base
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("socks5 proxy: %w", err)
		}
		dc, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("socks5: context dialer not supported")
		}
		base.DialContext = dc.DialContext
		s.client.Transport = base
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}

	s.proxy = proxyAddr
	return nil
}

// doRequest builds and executes an HTTP request with the headers the
// instagram.com web client sends. A non-nil body is sent as a form.
func (s *Scraper) doRequest(ctx context.Context, method, urlStr string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.stateMu.RLock()
	userAgent, deviceID := s.userAgent, s.uuids.DeviceID
	s.stateMu.RUnlock()

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", s.baseURL+"/")
	req.Header.Set("Origin", s.baseURL)
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Web-Device-Id", deviceID)
	if token := s.cookieValue("csrftoken"); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, ErrRateLimited
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, ErrAuthRequired
	}

	return resp, nil
}

// apiError is the envelope Instagram uses for failed API calls.
type apiError struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// classify maps an Instagram error envelope to a sentinel error.
func (e apiError) classify(statusCode int) error {
	switch {
	case e.Message == "login_required" || e.ErrorType == "login_required":
		return ErrAuthRequired
	case e.Message == "checkpoint_required" || e.Message == "challenge_required" ||
		e.ErrorType == "checkpoint_challenge_required":
		return ErrChallengeRequired
	case e.Message == "feedback_required" || strings.Contains(e.Message, "wait a few minutes"):
		return ErrRateLimited
	case statusCode == http.StatusForbidden:
		return ErrAuthRequired
	}
	return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, statusCode, e.Message)
}

// getJSON performs a throttled GET against the API and decodes a 200
// response into out. Error envelopes are classified into sentinel errors.
func (s *Scraper) getJSON(ctx context.Context, urlStr string, out any) error {
	s.waitForRequest()

	resp, err := s.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return apiErr.classify(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	return nil
}

// waitForRequest enforces the minimum spacing between API calls.
func (s *Scraper) waitForRequest() {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()
	s.throttle(&s.lastRequest, s.requestDelay)
}

// throttle sleeps if needed to enforce min delay + jitter between requests.
func (s *Scraper) throttle(lastReq *time.Time, delay time.Duration) {
	if delay == 0 {
		return
	}
	elapsed := time.Since(*lastReq)
	jitter := time.Duration(rand.Int64N(int64(200 * time.Millisecond)))
	wait := delay + jitter - elapsed
	if wait > 0 {
		time.Sleep(wait)
	}
	*lastReq = time.Now()
}

func (s *Scraper) cookieURL() *url.URL {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		u, _ = url.Parse(defaultBaseURL)
	}
	return u
}

func (s *Scraper) cookieValue(name string) string {
	for _, c := range s.GetCookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// GetCookies returns the current session cookies for instagram.com.
func (s *Scraper) GetCookies() []*http.Cookie {
	return s.client.Jar.Cookies(s.cookieURL())
}

// SetCookies sets session cookies and picks up the account id from
// ds_user_id when present.
func (s *Scraper) SetCookies(cookies []*http.Cookie) {
	s.client.Jar.SetCookies(s.cookieURL(), cookies)
	for _, c := range cookies {
		if c.Name == "ds_user_id" && c.Value != "" {
			s.stateMu.Lock()
			s.userID = c.Value
			s.stateMu.Unlock()
		}
	}
}

// IsLoggedIn reports whether the scraper has an active session.
func (s *Scraper) IsLoggedIn() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.isLogged
}

// UserID returns the logged-in account id, if known.
func (s *Scraper) UserID() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.userID
}

func (s *Scraper) currentUserAgent() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.userAgent
}

// Close releases all resources including the headless browser if running.
func (s *Scraper) Close() error {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()
	return s.closeBrowser()
}
