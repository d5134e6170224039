package instagram

import "time"

// Media is a post, reel, or IGTV video with its engagement metrics.
type Media struct {
	PK            string
	ID            string
	Code          string
	TakenAt       time.Time
	MediaType     int
	ProductType   string
	User          UserShort
	Caption       string
	LikeCount     int
	CommentCount  int
	ViewCount     int
	VideoURL      string
	ThumbnailURL  string
	VideoDuration float64
}

// UserShort is the author summary embedded in media and comments.
type UserShort struct {
	PK            string
	Username      string
	FullName      string
	ProfilePicURL string
	IsVerified    bool
}

// User is a full profile with follower stats.
type User struct {
	PK             string
	Username       string
	FullName       string
	Biography      string
	ExternalURL    string
	ProfilePicURL  string
	IsVerified     bool
	IsPrivate      bool
	FollowerCount  int
	FollowingCount int
	MediaCount     int
}

// Comment is a top-level comment on a media.
type Comment struct {
	PK        string
	Text      string
	User      UserShort
	LikeCount int
	CreatedAt time.Time
}
