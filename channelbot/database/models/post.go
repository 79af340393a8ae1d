package models

import "time"

// PostStatus is the closed set of moderation states a post moves through.
type PostStatus string

const (
	PostStatusPending    PostStatus = "pending"
	PostStatusApproved   PostStatus = "approved"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusRejected   PostStatus = "rejected"
	PostStatusCancelled  PostStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s PostStatus) Terminal() bool {
	switch s {
	case PostStatusPublished, PostStatusRejected, PostStatusCancelled:
		return true
	}
	return false
}

// ActivePostStatuses are the states a post can still be cancelled from.
var ActivePostStatuses = []PostStatus{
	PostStatusPending,
	PostStatusApproved,
	PostStatusPublishing,
}

// Post is a single moderation-and-publish unit. PostID is assigned by
// storage on first save. The author is referenced by id only.
type Post struct {
	PostID           int64      `json:"post_id"`
	UserID           int64      `json:"user_id"`
	Text             string     `json:"text"`
	RequiresPin      bool       `json:"requires_pin"`
	CreatedAt        time.Time  `json:"created_at"`
	Status           PostStatus `json:"status"`
	ChannelMessageID int64      `json:"channel_message_id,omitempty"`
	ChatMessageID    int64      `json:"chat_message_id,omitempty"`
	ButtonText       string     `json:"button_text,omitempty"`
	ButtonURL        string     `json:"button_url,omitempty"`
	PhotoFileID      string     `json:"photo_file_id,omitempty"`
	ParseMode        string     `json:"parse_mode,omitempty"`
}

func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
