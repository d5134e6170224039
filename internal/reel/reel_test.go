package reel

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	instagram "github.com/RavensCloud/reels-gofun"
	"github.com/RavensCloud/reels-gofun/internal/session"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeClient struct {
	media    instagram.Media
	user     instagram.User
	comments []instagram.Comment

	mediaErr    error
	userErr     error
	commentsErr error

	calls        []string
	gotAmount    int
	gotUsername  string
	gotMediaPK   string
	gotCommentPK string
}

func (f *fakeClient) Settings() instagram.Settings           { return instagram.Settings{} }
func (f *fakeClient) ApplySettings(instagram.Settings) error { return nil }
func (f *fakeClient) Login(context.Context, string, string, string) error {
	return nil
}

func (f *fakeClient) MediaPKFromURL(rawURL string) (string, error) {
	f.calls = append(f.calls, "resolve")
	return instagram.MediaPKFromURL(rawURL)
}

func (f *fakeClient) MediaInfo(_ context.Context, pk string) (instagram.Media, error) {
	f.calls = append(f.calls, "media")
	f.gotMediaPK = pk
	return f.media, f.mediaErr
}

func (f *fakeClient) UserInfoByUsername(_ context.Context, username string) (instagram.User, error) {
	f.calls = append(f.calls, "user")
	f.gotUsername = username
	return f.user, f.userErr
}

func (f *fakeClient) MediaComments(_ context.Context, pk string, amount int) ([]instagram.Comment, error) {
	f.calls = append(f.calls, "comments")
	f.gotCommentPK = pk
	f.gotAmount = amount
	return f.comments, f.commentsErr
}

type fakeSessions struct {
	ensureErr error
	ensured   int
	cleared   int
}

func (f *fakeSessions) EnsureAuthenticated(context.Context, session.Authenticator) error {
	f.ensured++
	return f.ensureErr
}

func (f *fakeSessions) Clear() error {
	f.cleared++
	return nil
}

func makeComments(n int) []instagram.Comment {
	out := make([]instagram.Comment, 0, n)
	for i := range n {
		out = append(out, instagram.Comment{
			PK:        fmt.Sprintf("c%d", i),
			Text:      fmt.Sprintf("comment %d", i),
			User:      instagram.UserShort{Username: fmt.Sprintf("fan%d", i)},
			LikeCount: i,
		})
	}
	return out
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		media: instagram.Media{
			PK:           "64",
			Code:         "BA",
			TakenAt:      time.Date(2024, 1, 23, 8, 53, 20, 0, time.UTC),
			User:         instagram.UserShort{Username: "author"},
			Caption:      "hello reel",
			LikeCount:    1200,
			CommentCount: 250,
			ViewCount:    98000,
			VideoURL:     "https://cdn.example/v.mp4",
			ThumbnailURL: "https://cdn.example/t.jpg",
		},
		user: instagram.User{
			Username:      "author",
			FullName:      "Reel Author",
			Biography:     "making reels",
			IsVerified:    true,
			ProfilePicURL: "https://cdn.example/hd.jpg",
			FollowerCount: 5000,
		},
		comments: makeComments(2),
	}
}

const reelURL = "https://www.instagram.com/reel/BA/"

func TestScrape_Success(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	sessions := &fakeSessions{}
	svc := NewService(client, sessions)

	rec, err := svc.Scrape(context.Background(), reelURL)
	require.NoError(t, err)

	want := Record{
		Method:        Method,
		Shortcode:     "BA",
		ID:            "64",
		Username:      "author",
		FullName:      "Reel Author",
		Bio:           "making reels",
		Verified:      true,
		ProfilePicURL: "https://cdn.example/hd.jpg",
		Followers:     5000,
		LikeCount:     1200,
		ViewCount:     98000,
		CommentCount:  250,
		Caption:       "hello reel",
		TakenAt:       "2024-01-23T08:53:20Z",
		VideoURL:      "https://cdn.example/v.mp4",
		ImageURL:      "https://cdn.example/t.jpg",
		Comments: []CommentRecord{
			{ID: "c0", Text: "comment 0", Username: "fan0", LikeCount: 0},
			{ID: "c1", Text: "comment 1", Username: "fan1", LikeCount: 1},
		},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("Scrape() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1, sessions.ensured)
	assert.Equal(t, []string{"resolve", "media", "user", "comments"}, client.calls)
	assert.Equal(t, "64", client.gotMediaPK)
	assert.Equal(t, "author", client.gotUsername)
	assert.Equal(t, MaxComments, client.gotAmount)

	_, err = time.Parse(time.RFC3339, rec.TakenAt)
	assert.NoError(t, err, "taken_at must be ISO-8601")
}

func TestScrape_JSONShape(t *testing.T) {
	t.Parallel()
	svc := NewService(newFakeClient(), &fakeSessions{})

	rec, err := svc.Scrape(context.Background(), reelURL)
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, key := range []string{
		"method", "shortcode", "id", "username", "full_name", "bio", "verified",
		"profile_pic_url", "followers", "like_count", "view_count", "comment_count",
		"caption", "taken_at", "video_url", "image_url", "comments",
	} {
		assert.Contains(t, fields, key)
	}
	assert.IsType(t, "", fields["taken_at"])
	assert.IsType(t, float64(0), fields["followers"])
	assert.IsType(t, true, fields["verified"])

	comments, ok := fields["comments"].([]any)
	require.True(t, ok)
	first, ok := comments[0].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"id", "text", "username", "like_count"}, keys(first))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestScrape_NoCommentsIsEmptyList(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.comments = nil
	svc := NewService(client, &fakeSessions{})

	rec, err := svc.Scrape(context.Background(), reelURL)
	require.NoError(t, err)
	require.NotNil(t, rec.Comments)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"comments":[]`)
}

func TestScrape_CommentsBounded(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.comments = makeComments(250)
	svc := NewService(client, &fakeSessions{})

	rec, err := svc.Scrape(context.Background(), reelURL)
	require.NoError(t, err)
	assert.Len(t, rec.Comments, MaxComments)
	assert.Equal(t, "c99", rec.Comments[MaxComments-1].ID)
}

func TestScrape_InvalidURL(t *testing.T) {
	t.Parallel()
	tests := []string{
		"",
		"not a url",
		"https://example.com/reel/BA/",
		"https://www.instagram.com/someone/",
	}
	for _, url := range tests {
		t.Run(url, func(t *testing.T) {
			t.Parallel()
			client := newFakeClient()
			svc := NewService(client, &fakeSessions{})

			rec, err := svc.Scrape(context.Background(), url)
			require.ErrorIs(t, err, instagram.ErrInvalidURL)
			assert.Equal(t, Record{}, rec, "no partial record on failure")
			assert.Equal(t, []string{"resolve"}, client.calls)
		})
	}
}

func TestScrape_AuthFailure(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	sessions := &fakeSessions{ensureErr: instagram.ErrBadCredentials}
	svc := NewService(client, sessions)

	_, err := svc.Scrape(context.Background(), reelURL)
	require.ErrorIs(t, err, instagram.ErrBadCredentials)
	assert.Empty(t, client.calls, "nothing is fetched without a session")
}

func TestScrape_FetchFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		setup     func(*fakeClient)
		want      error
		wantCalls []string
	}{
		{
			name:      "media not found",
			setup:     func(c *fakeClient) { c.mediaErr = instagram.ErrNotFound },
			want:      instagram.ErrNotFound,
			wantCalls: []string{"resolve", "media"},
		},
		{
			name:      "user rate limited",
			setup:     func(c *fakeClient) { c.userErr = instagram.ErrRateLimited },
			want:      instagram.ErrRateLimited,
			wantCalls: []string{"resolve", "media", "user"},
		},
		{
			name:      "comments network error",
			setup:     func(c *fakeClient) { c.commentsErr = instagram.ErrInvalidResponse },
			want:      instagram.ErrInvalidResponse,
			wantCalls: []string{"resolve", "media", "user", "comments"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newFakeClient()
			tt.setup(client)
			sessions := &fakeSessions{}
			svc := NewService(client, sessions)

			rec, err := svc.Scrape(context.Background(), reelURL)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, Record{}, rec)
			assert.Equal(t, tt.wantCalls, client.calls)
			assert.Zero(t, sessions.cleared)
		})
	}
}

func TestScrape_RejectedSessionIsCleared(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.mediaErr = fmt.Errorf("media info 64: %w", instagram.ErrAuthRequired)
	sessions := &fakeSessions{}
	svc := NewService(client, sessions)

	_, err := svc.Scrape(context.Background(), reelURL)
	require.ErrorIs(t, err, instagram.ErrAuthRequired)
	assert.Equal(t, 1, sessions.cleared)
}

func TestScrape_Spans(t *testing.T) {
	t.Parallel()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	client := newFakeClient()
	client.userErr = instagram.ErrNotFound
	svc := NewService(client, &fakeSessions{}, WithTracer(provider.Tracer("test")))

	_, err := svc.Scrape(context.Background(), reelURL)
	require.Error(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{
		"reel.ensure_authenticated",
		"reel.media_info",
		"reel.user_info",
		"reel.Scrape",
	}, names)
}
