//go:build unittest

package instagram

import (
	"context"
	"fmt"
)

func (s *Scraper) LoginWithBrowser(ctx context.Context, username, password, verificationCode string) error {
	return fmt.Errorf("login: %w (build tag: unittest)", ErrBrowserNotReady)
}

func (s *Scraper) launchBrowser() error {
	return fmt.Errorf("browser: %w (build tag: unittest)", ErrBrowserNotReady)
}

func (s *Scraper) setupResourceBlocking() {}

func (s *Scraper) syncCookiesFromBrowser() error {
	return fmt.Errorf("sync cookies: %w (build tag: unittest)", ErrBrowserNotReady)
}

func (s *Scraper) closeBrowser() error {
	s.page = nil
	s.browser = nil
	return nil
}
