package models

import (
	"regexp"
	"time"

	"gorm.io/gorm"
)

// AnonymousUsername is the reserved account that owns anonymous posts.
// Handlers and the ranked-set ledger route posts with a nil UserID here.
const AnonymousUsername = "Anonymous"

// PostLifetime is how long a post lives before the sweeper removes it.
const PostLifetime = 24 * time.Hour

// User represents a Blast account.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Phone    string `gorm:"uniqueIndex;size:30" json:"-"`
	Email    string `gorm:"size:50" json:"email,omitempty"`
	Username string `gorm:"uniqueIndex;size:15;not null" json:"username"`
	Fullname string `gorm:"size:50" json:"fullname"`
	Bio      string `gorm:"size:100" json:"bio"`
	Website  string `gorm:"size:50" json:"website"`
	Avatar   string `json:"avatar"`

	PasswordHash string `gorm:"type:text" json:"-"`

	IsPrivate  bool `gorm:"default:false" json:"is_private"`
	IsSafeMode bool `gorm:"default:false" json:"is_safe_mode"`

	// Popularity is a ranking counter, only ever moved by atomic
	// relational increments. It mirrors the global popularity ZSET.
	Popularity float64 `gorm:"default:0" json:"popularity"`

	PinnedPosts []Post `gorm:"many2many:user_pinned_posts" json:"-"`
	HiddenPosts []Post `gorm:"many2many:user_hidden_posts" json:"-"`
	PinnedTags  []Tag  `gorm:"many2many:user_pinned_tags" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Post is an ephemeral blast. UserID is nil for anonymous posts; their
// ranked-set entries belong to the reserved Anonymous account.
type Post struct {
	ID     uint  `gorm:"primaryKey" json:"id"`
	UserID *uint `gorm:"index" json:"user_id,omitempty"`
	User   *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Text        string `gorm:"size:256" json:"text"`
	IsAnonymous bool   `gorm:"default:false" json:"is_anonymous"`

	// Counter caches for the voted/downvoted lists.
	VotedCount     int `gorm:"default:0" json:"voted_count"`
	DownvotedCount int `gorm:"default:0" json:"downvoted_count"`

	Tags []Tag `gorm:"many2many:post_tags" json:"-"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Popularity is the derived ranking score of a post.
func (p *Post) Popularity() float64 {
	return float64(p.VotedCount - p.DownvotedCount)
}

// Expired reports whether the post is past its expiry time.
func (p *Post) Expired(now time.Time) bool {
	return p.ExpiresAt.Before(now)
}

var (
	tagRegexp     = regexp.MustCompile(`(?:(?:\s)|^)#(\w*[A-Za-z_]+\w*)`)
	mentionRegexp = regexp.MustCompile(`(?:(?:\s)|^)@(\w*[A-Za-z_]+\w*)`)
)

// TagTitles extracts #hashtag titles from the post text.
func (p *Post) TagTitles() []string {
	matches := tagRegexp.FindAllStringSubmatch(p.Text, -1)
	titles := make([]string, 0, len(matches))
	for _, m := range matches {
		titles = append(titles, m[1])
	}
	return titles
}

// MentionedUsernames extracts @username mentions from the post text.
func (p *Post) MentionedUsernames() []string {
	matches := mentionRegexp.FindAllStringSubmatch(p.Text, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// PostVote holds one user's vote on one post. IsPositive is nil until the
// user actually votes; re-voting flips it in place.
type PostVote struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;uniqueIndex:idx_post_votes_user_post" json:"user_id"`
	PostID uint `gorm:"not null;uniqueIndex:idx_post_votes_user_post" json:"post_id"`

	IsPositive *bool `json:"is_positive"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Follower is a directed follow edge, unique per pair.
type Follower struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	FollowerID uint `gorm:"not null;uniqueIndex:idx_followers_edge" json:"follower_id"`
	FolloweeID uint `gorm:"not null;uniqueIndex:idx_followers_edge;index" json:"followee_id"`

	CreatedAt time.Time `json:"created_at"`
}

// Tag is a hashtag. Titles are the primary key, matching the redis key
// scheme tag:<title>:posts.
type Tag struct {
	Title string `gorm:"primaryKey;size:30" json:"title"`

	// TotalPosts counts the live posts carrying this tag.
	TotalPosts int `gorm:"default:0" json:"total_posts"`

	CreatedAt time.Time `json:"created_at"`
}

// PostTag links posts to tags.
type PostTag struct {
	PostID   uint   `gorm:"primaryKey" json:"post_id"`
	TagTitle string `gorm:"primaryKey;size:30" json:"tag_title"`

	CreatedAt time.Time `json:"created_at"`
}

// PostComment is a threaded comment on a post.
type PostComment struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	ParentID *uint `gorm:"index" json:"parent_id,omitempty"`
	UserID   uint  `gorm:"not null;index" json:"user_id"`
	PostID   uint  `gorm:"not null;index" json:"post_id"`

	Text string `gorm:"size:256;not null" json:"text"`

	CreatedAt time.Time `json:"created_at"`
}

// MentionedUsernames extracts @username mentions from the comment text.
func (c *PostComment) MentionedUsernames() []string {
	matches := mentionRegexp.FindAllStringSubmatch(c.Text, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// NotificationType enumerates persisted notification kinds.
type NotificationType int

const (
	NotificationNewFollower NotificationType = iota
	NotificationVoteMilestone
	NotificationMention
)

// Notification is a persisted best-effort notification row. Delivery
// mechanics live outside this repo; rows are what the dispatcher owns.
type Notification struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	Type    NotificationType `gorm:"not null" json:"type"`
	Message string           `gorm:"size:256" json:"message"`

	OtherID *uint `json:"other_id,omitempty"`
	PostID  *uint `json:"post_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Notify level choices for UserSettings.
const (
	NotifyOff = iota
	NotifyPeopleIFollow
	NotifyEveryone
)

// UserSettings holds per-user notification toggles, created with the user.
type UserSettings struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex;not null" json:"user_id"`

	NotifyVotes        bool `gorm:"default:true" json:"notify_votes"`
	NotifyNewFollowers int  `gorm:"default:1" json:"notify_new_followers"`
	NotifyComments     int  `gorm:"default:1" json:"notify_comments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
