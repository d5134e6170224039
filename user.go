package instagram

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// UserInfoByUsername fetches a full profile, including follower counts.
func (s *Scraper) UserInfoByUsername(ctx context.Context, username string) (User, error) {
	if username == "" {
		return User{}, fmt.Errorf("get user: username is required")
	}

	totalStart := time.Now()
	profileURL := s.baseURL + "/api/v1/users/web_profile_info/?username=" + url.QueryEscape(username)

	var res webProfileInfoResponse
	if err := s.getJSON(ctx, profileURL, &res); err != nil {
		return User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	if res.Data.User == nil || res.Data.User.Username == "" {
		return User{}, fmt.Errorf("get user %q: %w: user data missing", username, ErrNotFound)
	}

	perfLog("UserInfoByUsername: user=%s total=%v", username, time.Since(totalStart))
	return parseProfile(*res.Data.User), nil
}
