package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blastsocial/backend/internal/models"
	"github.com/blastsocial/backend/internal/social"
)

// AuthorView is the post author as shown to clients. Anonymous posts get
// the sentinel username with no ID.
type AuthorView struct {
	ID       uint   `json:"id,omitempty"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// PostView is the client-facing shape of a post.
type PostView struct {
	ID             uint       `json:"id"`
	Author         AuthorView `json:"author"`
	Text           string     `json:"text"`
	VotedCount     int        `json:"voted_count"`
	DownvotedCount int        `json:"downvoted_count"`
	Popularity     float64    `json:"popularity"`
	Tags           []string   `json:"tags"`
	IsPinned       bool       `json:"is_pinned"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UserView is the client-facing shape of a user in listings.
type UserView struct {
	ID         uint    `json:"id"`
	Username   string  `json:"username"`
	Fullname   string  `json:"fullname,omitempty"`
	Avatar     string  `json:"avatar,omitempty"`
	Popularity float64 `json:"popularity"`
	IsFollowee bool    `json:"is_followee"`
}

func postView(p *models.Post, author *models.User, pinned bool) PostView {
	view := PostView{
		ID:             p.ID,
		Author:         AuthorView{Username: models.AnonymousUsername},
		Text:           p.Text,
		VotedCount:     p.VotedCount,
		DownvotedCount: p.DownvotedCount,
		Popularity:     p.Popularity(),
		Tags:           p.TagTitles(),
		IsPinned:       pinned,
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      p.CreatedAt,
	}
	if !p.IsAnonymous && author != nil {
		view.Author = AuthorView{ID: author.ID, Username: author.Username, Avatar: author.Avatar}
	}
	return view
}

func userView(u *models.User, isFollowee bool) UserView {
	return UserView{
		ID:         u.ID,
		Username:   u.Username,
		Fullname:   u.Fullname,
		Avatar:     u.Avatar,
		Popularity: u.Popularity,
		IsFollowee: isFollowee,
	}
}

// postViews materializes authors in one query and resolves the viewer's
// pinned set so every post carries its IsPinned flag.
func (h *Handlers) postViews(ctx context.Context, list []models.Post, viewerID uint) []PostView {
	authorIDs := make([]uint, 0, len(list))
	for i := range list {
		if list[i].User == nil && list[i].UserID != nil && !list[i].IsAnonymous {
			authorIDs = append(authorIDs, *list[i].UserID)
		}
	}
	authors := map[uint]*models.User{}
	if len(authorIDs) > 0 {
		users, err := h.query.MaterializeUsers(ctx, authorIDs)
		if err == nil {
			for i := range users {
				authors[users[i].ID] = &users[i]
			}
		}
	}

	pinned := map[uint]bool{}
	if viewerID != 0 {
		if ids, err := h.posts.PinnedPostIDs(ctx, viewerID); err == nil {
			for _, id := range ids {
				pinned[id] = true
			}
		}
	}

	views := make([]PostView, 0, len(list))
	for i := range list {
		p := &list[i]
		author := p.User
		if author == nil && p.UserID != nil {
			author = authors[*p.UserID]
		}
		views = append(views, postView(p, author, pinned[p.ID]))
	}
	return views
}

func listEntryViews(entries []social.ListEntry) []gin.H {
	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		postsOut := make([]PostView, 0, len(e.Posts))
		for j := range e.Posts {
			postsOut = append(postsOut, postView(&e.Posts[j], &e.User, false))
		}
		out = append(out, gin.H{
			"user":  userView(&e.User, e.IsFollowee),
			"posts": postsOut,
		})
	}
	return out
}
