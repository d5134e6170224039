// Package reel turns a post URL into a flat record of post, author, and
// comment data.
package reel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	instagram "github.com/RavensCloud/reels-gofun"
	"github.com/RavensCloud/reels-gofun/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// MaxComments bounds the comment list of a Record.
const MaxComments = 100

// Method identifies the backend that produced a Record.
const Method = "instagram-web-api"

// Client is the Instagram client surface the service needs.
type Client interface {
	session.Authenticator
	MediaPKFromURL(rawURL string) (string, error)
	MediaInfo(ctx context.Context, pk string) (instagram.Media, error)
	UserInfoByUsername(ctx context.Context, username string) (instagram.User, error)
	MediaComments(ctx context.Context, pk string, amount int) ([]instagram.Comment, error)
}

// Sessions is the session cache the service logs in through.
type Sessions interface {
	EnsureAuthenticated(ctx context.Context, client session.Authenticator) error
	Clear() error
}

// Record is the flattened response for one post.
type Record struct {
	Method        string          `json:"method"`
	Shortcode     string          `json:"shortcode"`
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	FullName      string          `json:"full_name"`
	Bio           string          `json:"bio"`
	Verified      bool            `json:"verified"`
	ProfilePicURL string          `json:"profile_pic_url"`
	Followers     int             `json:"followers"`
	LikeCount     int             `json:"like_count"`
	ViewCount     int             `json:"view_count"`
	CommentCount  int             `json:"comment_count"`
	Caption       string          `json:"caption"`
	TakenAt       string          `json:"taken_at"`
	VideoURL      string          `json:"video_url"`
	ImageURL      string          `json:"image_url"`
	Comments      []CommentRecord `json:"comments"`
}

// CommentRecord is one comment in a Record.
type CommentRecord struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	LikeCount int    `json:"like_count"`
}

// Service scrapes posts through a single shared client.
type Service struct {
	client   Client
	sessions Sessions
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTracer sets the tracer used for per-step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires a Service.
func NewService(client Client, sessions Sessions, opts ...Option) *Service {
	s := &Service{
		client:   client,
		sessions: sessions,
		tracer:   noop.NewTracerProvider().Tracer("reel"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "reel")
	return s
}

// Scrape logs in (reusing the cached session when possible), resolves url to
// a media id, and fetches the post, its author's profile, and up to
// MaxComments comments. Any failure aborts the whole call.
func (s *Service) Scrape(ctx context.Context, url string) (rec Record, err error) {
	ctx, span := s.tracer.Start(ctx, "reel.Scrape", trace.WithAttributes(attribute.String("reel.url", url)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scrape failed")
		}
		span.End()
	}()
	start := time.Now()

	if err := s.step(ctx, "ensure_authenticated", func(ctx context.Context) error {
		return s.sessions.EnsureAuthenticated(ctx, s.client)
	}); err != nil {
		return Record{}, fmt.Errorf("authenticate: %w", err)
	}

	pk, err := s.client.MediaPKFromURL(url)
	if err != nil {
		return Record{}, fmt.Errorf("resolve %q: %w", url, err)
	}
	span.SetAttributes(attribute.String("reel.pk", pk))

	var media instagram.Media
	if err := s.step(ctx, "media_info", func(ctx context.Context) (ferr error) {
		media, ferr = s.client.MediaInfo(ctx, pk)
		return ferr
	}); err != nil {
		return Record{}, s.fetchFailed(err)
	}

	var author instagram.User
	if err := s.step(ctx, "user_info", func(ctx context.Context) (ferr error) {
		author, ferr = s.client.UserInfoByUsername(ctx, media.User.Username)
		return ferr
	}); err != nil {
		return Record{}, s.fetchFailed(err)
	}

	var comments []instagram.Comment
	if err := s.step(ctx, "media_comments", func(ctx context.Context) (ferr error) {
		comments, ferr = s.client.MediaComments(ctx, media.PK, MaxComments)
		return ferr
	}); err != nil {
		return Record{}, s.fetchFailed(err)
	}

	rec = newRecord(media, author, comments)
	s.logger.Info("scraped",
		"shortcode", rec.Shortcode,
		"username", rec.Username,
		"comments", len(rec.Comments),
		"duration", time.Since(start),
	)
	return rec, nil
}

// Compare scrapes both URLs in turn and ranks them. A failure on either
// aborts the comparison.
func (s *Service) Compare(ctx context.Context, url1, url2 string) (Comparison, error) {
	a, err := s.Scrape(ctx, url1)
	if err != nil {
		return Comparison{}, fmt.Errorf("reel1: %w", err)
	}
	b, err := s.Scrape(ctx, url2)
	if err != nil {
		return Comparison{}, fmt.Errorf("reel2: %w", err)
	}
	return Compare(a, b), nil
}

func (s *Service) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "reel."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	return nil
}

// fetchFailed drops the cached session when Instagram no longer accepts it,
// so the next request logs in with credentials.
func (s *Service) fetchFailed(err error) error {
	if errors.Is(err, instagram.ErrAuthRequired) {
		if cerr := s.sessions.Clear(); cerr != nil {
			s.logger.Error("failed to clear rejected session", "error", cerr)
		} else {
			s.logger.Warn("session rejected, cleared for next request")
		}
	}
	return fmt.Errorf("fetch: %w", err)
}

func newRecord(media instagram.Media, author instagram.User, comments []instagram.Comment) Record {
	if len(comments) > MaxComments {
		comments = comments[:MaxComments]
	}
	rec := Record{
		Method:        Method,
		Shortcode:     media.Code,
		ID:            media.PK,
		Username:      media.User.Username,
		FullName:      author.FullName,
		Bio:           author.Biography,
		Verified:      author.IsVerified,
		ProfilePicURL: author.ProfilePicURL,
		Followers:     author.FollowerCount,
		LikeCount:     media.LikeCount,
		ViewCount:     media.ViewCount,
		CommentCount:  media.CommentCount,
		Caption:       media.Caption,
		TakenAt:       media.TakenAt.UTC().Format(time.RFC3339),
		VideoURL:      media.VideoURL,
		ImageURL:      media.ThumbnailURL,
		Comments:      make([]CommentRecord, 0, len(comments)),
	}
	for _, c := range comments {
		rec.Comments = append(rec.Comments, CommentRecord{
			ID:        c.PK,
			Text:      c.Text,
			Username:  c.User.Username,
			LikeCount: c.LikeCount,
		})
	}
	return rec
}
