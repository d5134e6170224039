package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// loginResponse is the body of the web login and two-factor endpoints.
type loginResponse struct {
	Authenticated     bool   `json:"authenticated"`
	User              bool   `json:"user"`
	UserID            string `json:"userId"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	CheckpointURL     string `json:"checkpoint_url"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	TwoFactorInfo     struct {
		TwoFactorIdentifier string `json:"two_factor_identifier"`
		Username            string `json:"username"`
	} `json:"two_factor_info"`
	ErrorType string `json:"error_type"`
}

type currentUserResponse struct {
	User struct {
		PK       json.Number `json:"pk"`
		Username string      `json:"username"`
	} `json:"user"`
	Status string `json:"status"`
}

// Login authenticates the account. When the Scraper already carries a
// session cookie (from ApplySettings or LoadSettings) the session is checked
// first and reused if Instagram still accepts it; otherwise a credential
// login runs. verificationCode answers a two-factor prompt and may be empty.
func (s *Scraper) Login(ctx context.Context, username, password, verificationCode string) error {
	if username == "" || password == "" {
		return fmt.Errorf("login: %w: username and password are required", ErrBadCredentials)
	}

	if s.hasSessionCookie() {
		err := s.validateSession(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrAuthRequired) {
			return fmt.Errorf("login: validate session: %w", err)
		}
		perfLog("Login: cached session for %s rejected, logging in with credentials", username)
		s.stateMu.Lock()
		s.isLogged = false
		s.stateMu.Unlock()
	}

	err := s.webLogin(ctx, username, password, verificationCode)
	if errors.Is(err, ErrChallengeRequired) && s.browserFallback {
		perfLog("Login: challenge for %s, falling back to browser", username)
		if berr := s.LoginWithBrowser(ctx, username, password, verificationCode); berr != nil {
			return fmt.Errorf("login %q: browser fallback: %w", username, berr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("login %q: %w", username, err)
	}
	return nil
}

// validateSession asks Instagram who the current session belongs to.
func (s *Scraper) validateSession(ctx context.Context) error {
	var res currentUserResponse
	if err := s.getJSON(ctx, s.baseURL+"/api/v1/accounts/current_user/?edit=true", &res); err != nil {
		return err
	}
	if res.User.PK == "" {
		return ErrAuthRequired
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.userID = res.User.PK.String()
	if res.User.Username != "" {
		s.username = res.User.Username
	}
	s.isLogged = true
	return nil
}

func (s *Scraper) webLogin(ctx context.Context, username, password, verificationCode string) error {
	start := time.Now()

	if err := s.ensureCSRFToken(ctx); err != nil {
		return err
	}

	form := url.Values{
		"username":             {username},
		"enc_password":         {encPassword(password, time.Now())},
		"queryParams":          {"{}"},
		"optIntoOneTap":        {"false"},
		"trustedDeviceRecords": {"{}"},
	}
	res, err := s.postLogin(ctx, "/api/v1/web/accounts/login/ajax/", form)
	if err != nil {
		return err
	}

	if res.TwoFactorRequired {
		if verificationCode == "" {
			return ErrTwoFactorRequired
		}
		form := url.Values{
			"username":         {username},
			"verificationCode": {verificationCode},
			"identifier":       {res.TwoFactorInfo.TwoFactorIdentifier},
			"queryParams":      {"{}"},
			"trust_signal":     {"true"},
		}
		res, err = s.postLogin(ctx, "/api/v1/web/accounts/login/ajax/two_factor/", form)
		if err != nil {
			return fmt.Errorf("two-factor: %w", err)
		}
	}

	switch {
	case res.Authenticated:
	case res.CheckpointURL != "" || res.Message == "checkpoint_required" || res.Message == "challenge_required":
		return ErrChallengeRequired
	case res.TwoFactorRequired:
		return fmt.Errorf("%w: verification code rejected", ErrTwoFactorRequired)
	default:
		msg := res.Message
		if msg == "" {
			msg = "not authenticated"
		}
		return fmt.Errorf("%w: %s", ErrBadCredentials, msg)
	}

	s.completeLogin(username, res.UserID)
	perfLog("webLogin: user=%s total=%v", username, time.Since(start))
	return nil
}

// ensureCSRFToken loads the login page once so Instagram sets the csrftoken
// cookie that every POST must echo back.
func (s *Scraper) ensureCSRFToken(ctx context.Context) error {
	if s.cookieValue("csrftoken") != "" {
		return nil
	}

	resp, err := s.doRequest(ctx, http.MethodGet, s.baseURL+"/accounts/login/", nil)
	if err != nil {
		return fmt.Errorf("load login page: %w", err)
	}
	resp.Body.Close()

	if s.cookieValue("csrftoken") == "" {
		return fmt.Errorf("%w: csrftoken cookie missing", ErrInvalidResponse)
	}
	return nil
}

// postLogin posts a login form. Instagram answers failed logins with a 400
// and a JSON body, so the body is decoded regardless of status.
func (s *Scraper) postLogin(ctx context.Context, path string, form url.Values) (loginResponse, error) {
	s.waitForRequest()

	resp, err := s.doRequest(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return loginResponse{}, err
	}
	defer resp.Body.Close()

	var res loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return loginResponse{}, fmt.Errorf("%w: decode login response (status %d): %v", ErrInvalidResponse, resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusForbidden && !res.Authenticated {
		return loginResponse{}, fmt.Errorf("%w: %s", ErrChallengeRequired, res.Message)
	}
	return res, nil
}

func (s *Scraper) completeLogin(username, userID string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if userID != "" {
		s.userID = userID
	}
	s.username = username
	s.lastLogin = time.Now()
	s.isLogged = true
}

// encPassword formats a password the way the web client submits it without
// client-side encryption (key version 0).
func encPassword(password string, at time.Time) string {
	return fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", at.Unix(), password)
}
