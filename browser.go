//go:build !unittest

package instagram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// LoginWithBrowser logs in through a headless stealth browser. It is the
// path for accounts that hit a checkpoint on the web login endpoint. After
// login, cookies are synced to the HTTP client for subsequent API requests.
func (s *Scraper) LoginWithBrowser(ctx context.Context, username, password, verificationCode string) error {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()

	if s.browser == nil {
		if err := s.launchBrowser(); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	page := s.page.Context(ctx)

	if err := page.Navigate(s.baseURL + "/accounts/login/"); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}
	if err := page.WaitStable(2 * time.Second); err != nil {
		return fmt.Errorf("wait for login page: %w", err)
	}

	usernameInput, err := page.Element(`input[name="username"]`)
	if err != nil {
		return fmt.Errorf("find username input: %w", err)
	}
	if err := usernameInput.Input(username); err != nil {
		return fmt.Errorf("type username: %w", err)
	}

	passwordInput, err := page.Element(`input[name="password"]`)
	if err != nil {
		return fmt.Errorf("find password input: %w", err)
	}
	if err := passwordInput.Input(password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}

	loginBtn, err := page.Element(`button[type="submit"]`)
	if err != nil {
		return fmt.Errorf("find login button: %w", err)
	}
	if err := loginBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click login: %w", err)
	}

	if err := page.WaitStable(5 * time.Second); err != nil {
		return fmt.Errorf("wait after login: %w", err)
	}

	if verificationCode != "" {
		// The two-factor form only shows up for accounts that need it.
		if codeInput, err := page.Timeout(3 * time.Second).Element(`input[name="verificationCode"]`); err == nil {
			if err := codeInput.Input(verificationCode); err != nil {
				return fmt.Errorf("type verification code: %w", err)
			}
			confirmBtn, err := page.Element(`form button[type="button"], form button[type="submit"]`)
			if err != nil {
				return fmt.Errorf("find confirm button: %w", err)
			}
			if err := confirmBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
				return fmt.Errorf("click confirm: %w", err)
			}
			if err := page.WaitStable(5 * time.Second); err != nil {
				return fmt.Errorf("wait after verification: %w", err)
			}
		}
	}

	if err := s.syncCookiesFromBrowser(); err != nil {
		return err
	}
	if !s.hasSessionCookie() {
		return fmt.Errorf("%w: no session cookie after browser login", ErrChallengeRequired)
	}
	s.completeLogin(username, s.UserID())
	return nil
}

func (s *Scraper) launchBrowser() error {
	l := launcher.New().Headless(true)
	if s.proxy != "" {
		l = l.Proxy(s.proxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return fmt.Errorf("create stealth page: %w", err)
	}

	s.browser = browser
	s.page = page

	if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.currentUserAgent()}); err != nil {
		return fmt.Errorf("set browser user agent: %w", err)
	}

	s.setupResourceBlocking()
	return nil
}

func (s *Scraper) setupResourceBlocking() {
	router := s.browser.HijackRequests()
	blocked := []string{"*.png", "*.jpg", "*.jpeg", "*.webp", "*.mp4", "*.woff*", "*.svg"}
	for _, pattern := range blocked {
		router.MustAdd(pattern, func(ctx *rod.Hijack) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
}

// syncCookiesFromBrowser copies browser cookies to the HTTP client's cookie jar.
func (s *Scraper) syncCookiesFromBrowser() error {
	cookies, err := s.page.Cookies([]string{s.baseURL})
	if err != nil {
		return fmt.Errorf("get browser cookies: %w", err)
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"}
		// Session cookies report -1 and must not be stored as expired.
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		httpCookies = append(httpCookies, hc)
	}

	s.SetCookies(httpCookies)
	return nil
}

func (s *Scraper) closeBrowser() error {
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			return fmt.Errorf("close page: %w", err)
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		s.browser = nil
	}
	return nil
}
