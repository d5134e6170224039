package instagram

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"
)

const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// mediaPathKinds are the path segments that precede a shortcode.
var mediaPathKinds = map[string]bool{"p": true, "reel": true, "reels": true, "tv": true}

// MediaPKFromCode decodes a shortcode to the numeric media id. Shortcodes of
// private media carry a 28 character suffix that is not part of the id.
func MediaPKFromCode(code string) (string, error) {
	if len(code) > 28 {
		code = code[:len(code)-28]
	}
	if code == "" {
		return "", fmt.Errorf("%w: empty shortcode", ErrInvalidURL)
	}

	pk := new(big.Int)
	base := big.NewInt(int64(len(shortcodeAlphabet)))
	for _, r := range code {
		idx := strings.IndexRune(shortcodeAlphabet, r)
		if idx < 0 {
			return "", fmt.Errorf("%w: bad shortcode character %q", ErrInvalidURL, r)
		}
		pk.Mul(pk, base)
		pk.Add(pk, big.NewInt(int64(idx)))
	}
	return pk.String(), nil
}

// MediaPKFromURL resolves a post, reel, or IGTV URL to its media id without
// touching the network.
func MediaPKFromURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if host != "instagram.com" && host != "instagr.am" {
		return "", fmt.Errorf("%w: not an instagram host %q", ErrInvalidURL, u.Host)
	}

	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	for i := 0; i+1 < len(segments); i++ {
		if mediaPathKinds[strings.ToLower(segments[i])] {
			return MediaPKFromCode(segments[i+1])
		}
	}
	return "", fmt.Errorf("%w: no shortcode in path %q", ErrInvalidURL, u.Path)
}

// MediaPKFromURL is the method form of the package function, so the Scraper
// satisfies interfaces that resolve URLs through the client.
func (s *Scraper) MediaPKFromURL(rawURL string) (string, error) {
	return MediaPKFromURL(rawURL)
}

// MediaInfo fetches a media by its numeric id. Requires authentication.
func (s *Scraper) MediaInfo(ctx context.Context, pk string) (Media, error) {
	if pk == "" {
		return Media{}, fmt.Errorf("media info: pk is required")
	}

	start := time.Now()
	var res mediaInfoResponse
	if err := s.getJSON(ctx, s.baseURL+"/api/v1/media/"+url.PathEscape(pk)+"/info/", &res); err != nil {
		return Media{}, fmt.Errorf("media info %s: %w", pk, err)
	}
	if len(res.Items) == 0 {
		return Media{}, fmt.Errorf("media info %s: %w", pk, ErrNotFound)
	}

	perfLog("MediaInfo: pk=%s total=%v", pk, time.Since(start))
	return parseMedia(res.Items[0]), nil
}

// MediaComments fetches up to amount top-level comments, newest page first,
// following next_max_id cursors. amount <= 0 fetches every page.
func (s *Scraper) MediaComments(ctx context.Context, pk string, amount int) ([]Comment, error) {
	if pk == "" {
		return nil, fmt.Errorf("media comments: pk is required")
	}

	var all []Comment
	maxID := ""
	for page := 0; amount <= 0 || len(all) < amount; page++ {
		comments, next, err := s.fetchComments(ctx, pk, maxID)
		if err != nil {
			return all, fmt.Errorf("media comments %s: %w", pk, err)
		}
		all = append(all, comments...)
		perfLog("MediaComments: pk=%s page=%d got=%d", pk, page, len(comments))
		if next == "" || next == maxID {
			break
		}
		maxID = next
	}

	if amount > 0 && len(all) > amount {
		all = all[:amount]
	}
	return all, nil
}

func (s *Scraper) fetchComments(ctx context.Context, pk, maxID string) ([]Comment, string, error) {
	q := url.Values{
		"can_support_threading": {"true"},
		"permalink_enabled":     {"false"},
	}
	if maxID != "" {
		q.Set("max_id", maxID)
	}
	rawURL := s.baseURL + "/api/v1/media/" + url.PathEscape(pk) + "/comments/?" + q.Encode()

	var res commentsResponse
	if err := s.getJSON(ctx, rawURL, &res); err != nil {
		return nil, "", err
	}

	comments := make([]Comment, 0, len(res.Comments))
	for _, raw := range res.Comments {
		comments = append(comments, parseComment(raw))
	}

	next := ""
	if res.HasMoreComments {
		next = res.NextMaxID
	}
	return comments, next, nil
}
