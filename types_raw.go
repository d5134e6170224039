package instagram

import (
	"encoding/json"
	"time"
)

// Media info API response.

type mediaInfoResponse struct {
	Items  []rawMedia `json:"items"`
	Status string     `json:"status"`
}

// Comments API response.

type commentsResponse struct {
	Comments        []rawComment `json:"comments"`
	CommentCount    int          `json:"comment_count"`
	HasMoreComments bool         `json:"has_more_comments"`
	NextMaxID       string       `json:"next_max_id"`
	Status          string       `json:"status"`
}

// Web profile info API response.

type webProfileInfoResponse struct {
	Data struct {
		User *rawProfile `json:"user"`
	} `json:"data"`
	Status string `json:"status"`
}

// Shared raw structs (match Instagram JSON exactly). Ids are decoded as
// json.Number because Instagram sends them as numbers or strings depending
// on the endpoint.

type rawMedia struct {
	PK             json.Number   `json:"pk"`
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	TakenAt        int64         `json:"taken_at"`
	MediaType      int           `json:"media_type"`
	ProductType    string        `json:"product_type"`
	User           rawUserShort  `json:"user"`
	Caption        *rawCaption   `json:"caption"`
	LikeCount      int           `json:"like_count"`
	CommentCount   int           `json:"comment_count"`
	ViewCount      int           `json:"view_count"`
	PlayCount      int           `json:"play_count"`
	VideoDuration  float64       `json:"video_duration"`
	VideoVersions  []rawResource `json:"video_versions"`
	ImageVersions2 struct {
		Candidates []rawResource `json:"candidates"`
	} `json:"image_versions2"`
}

type rawCaption struct {
	Text string `json:"text"`
}

type rawResource struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type rawUserShort struct {
	PK            json.Number `json:"pk"`
	Username      string      `json:"username"`
	FullName      string      `json:"full_name"`
	ProfilePicURL string      `json:"profile_pic_url"`
	IsVerified    bool        `json:"is_verified"`
}

type rawComment struct {
	PK               json.Number  `json:"pk"`
	Text             string       `json:"text"`
	User             rawUserShort `json:"user"`
	CommentLikeCount int          `json:"comment_like_count"`
	CreatedAt        int64        `json:"created_at"`
}

type rawProfile struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	FullName        string   `json:"full_name"`
	Biography       string   `json:"biography"`
	ExternalURL     string   `json:"external_url"`
	ProfilePicURL   string   `json:"profile_pic_url"`
	ProfilePicURLHD string   `json:"profile_pic_url_hd"`
	IsVerified      bool     `json:"is_verified"`
	IsPrivate       bool     `json:"is_private"`
	EdgeFollowedBy  rawCount `json:"edge_followed_by"`
	EdgeFollow      rawCount `json:"edge_follow"`
	EdgeOwnerMedia  rawCount `json:"edge_owner_to_timeline_media"`
}

type rawCount struct {
	Count int `json:"count"`
}

// parseMedia converts a raw API media to the public Media type. Reels
// report plays rather than views, so play_count stands in when view_count
// is absent.
func parseMedia(raw rawMedia) Media {
	m := Media{
		PK:            raw.PK.String(),
		ID:            raw.ID,
		Code:          raw.Code,
		TakenAt:       time.Unix(raw.TakenAt, 0).UTC(),
		MediaType:     raw.MediaType,
		ProductType:   raw.ProductType,
		User:          parseUserShort(raw.User),
		LikeCount:     raw.LikeCount,
		CommentCount:  raw.CommentCount,
		ViewCount:     raw.ViewCount,
		VideoDuration: raw.VideoDuration,
	}
	if m.ViewCount == 0 {
		m.ViewCount = raw.PlayCount
	}
	if raw.Caption != nil {
		m.Caption = raw.Caption.Text
	}
	if len(raw.VideoVersions) > 0 {
		m.VideoURL = raw.VideoVersions[0].URL
	}
	if len(raw.ImageVersions2.Candidates) > 0 {
		m.ThumbnailURL = raw.ImageVersions2.Candidates[0].URL
	}
	return m
}

func parseUserShort(raw rawUserShort) UserShort {
	return UserShort{
		PK:            raw.PK.String(),
		Username:      raw.Username,
		FullName:      raw.FullName,
		ProfilePicURL: raw.ProfilePicURL,
		IsVerified:    raw.IsVerified,
	}
}

func parseComment(raw rawComment) Comment {
	return Comment{
		PK:        raw.PK.String(),
		Text:      raw.Text,
		User:      parseUserShort(raw.User),
		LikeCount: raw.CommentLikeCount,
		CreatedAt: time.Unix(raw.CreatedAt, 0).UTC(),
	}
}

// parseProfile converts a raw web profile to the public User type,
// preferring the HD avatar.
func parseProfile(raw rawProfile) User {
	pic := raw.ProfilePicURLHD
	if pic == "" {
		pic = raw.ProfilePicURL
	}
	return User{
		PK:             raw.ID,
		Username:       raw.Username,
		FullName:       raw.FullName,
		Biography:      raw.Biography,
		ExternalURL:    raw.ExternalURL,
		ProfilePicURL:  pic,
		IsVerified:     raw.IsVerified,
		IsPrivate:      raw.IsPrivate,
		FollowerCount:  raw.EdgeFollowedBy.Count,
		FollowingCount: raw.EdgeFollow.Count,
		MediaCount:     raw.EdgeOwnerMedia.Count,
	}
}
