package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/blastsocial/backend/internal/errors"
	"github.com/blastsocial/backend/internal/middleware"
	"github.com/blastsocial/backend/internal/models"
)

// CreatePost publishes a new ephemeral post for the authenticated user.
func (h *Handlers) CreatePost(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		Text        string `json:"text" binding:"required,max=256"`
		IsAnonymous bool   `json:"is_anonymous"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiErr := apierrors.BadRequest(err.Error())
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	post, err := h.posts.Create(c.Request.Context(), userID, req.Text, req.IsAnonymous)
	if err != nil {
		respondError(c, err)
		return
	}

	views := h.postViews(c.Request.Context(), []models.Post{*post}, userID)
	c.JSON(http.StatusCreated, gin.H{"post": views[0]})
}

// DeletePost removes the caller's post everywhere, cache sets included.
func (h *Handlers) DeletePost(c *gin.Context) {
	userID := middleware.UserID(c)
	postID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.posts.Delete(c.Request.Context(), postID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Upvote records a positive vote on a post.
func (h *Handlers) Upvote(c *gin.Context) {
	h.vote(c, true)
}

// Downvote records a negative vote on a post.
func (h *Handlers) Downvote(c *gin.Context) {
	h.vote(c, false)
}

func (h *Handlers) vote(c *gin.Context, positive bool) {
	userID := middleware.UserID(c)
	postID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	vote, err := h.posts.Vote(c.Request.Context(), userID, postID, positive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vote": vote})
}

// Unvote clears the caller's vote polarity without deleting the row.
func (h *Handlers) Unvote(c *gin.Context) {
	userID := middleware.UserID(c)
	postID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	vote, err := h.posts.Unvote(c.Request.Context(), userID, postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vote": vote})
}

// PinPost adds a post to the caller's pinned collection.
func (h *Handlers) PinPost(c *gin.Context) {
	h.membership(c, h.posts.Pin)
}

// UnpinPost removes a post from the caller's pinned collection.
func (h *Handlers) UnpinPost(c *gin.Context) {
	h.membership(c, h.posts.Unpin)
}

// HidePost hides a post from the caller's feeds.
func (h *Handlers) HidePost(c *gin.Context) {
	h.membership(c, h.posts.Hide)
}

// ShowPost undoes a hide.
func (h *Handlers) ShowPost(c *gin.Context) {
	h.membership(c, h.posts.Show)
}

func (h *Handlers) membership(c *gin.Context, op func(ctx context.Context, userID, postID uint) error) {
	userID := middleware.UserID(c)
	postID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := op(c.Request.Context(), userID, postID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CreateComment adds a comment, fanning out mention notifications.
func (h *Handlers) CreateComment(c *gin.Context) {
	userID := middleware.UserID(c)
	postID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Text     string `json:"text" binding:"required,max=256"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiErr := apierrors.BadRequest(err.Error())
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	comment, err := h.posts.Comment(c.Request.Context(), userID, postID, req.ParentID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// GetPinnedPosts returns the caller's pinned posts that are still live.
func (h *Handlers) GetPinnedPosts(c *gin.Context) {
	userID := middleware.UserID(c)

	list, err := h.posts.PinnedPosts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": h.postViews(c.Request.Context(), list, userID)})
}

// GetUserPosts returns a user's posts ranked by popularity.
func (h *Handlers) GetUserPosts(c *gin.Context) {
	viewerID := middleware.UserID(c)
	ownerID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	list, err := h.query.TopPostsByOwner(c.Request.Context(), ownerID, int64(offset), int64(offset+limit-1))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": h.postViews(c.Request.Context(), list, viewerID),
		"meta":  gin.H{"limit": limit, "offset": offset},
	})
}

// GetTagPosts returns a tag's posts ranked by popularity.
func (h *Handlers) GetTagPosts(c *gin.Context) {
	viewerID := middleware.UserID(c)
	title := c.Param("title")
	if title == "" {
		apiErr := apierrors.ValidationError("title", "must not be empty")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	list, err := h.query.TopPostsByTag(c.Request.Context(), title, int64(offset), int64(offset+limit-1))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": h.postViews(c.Request.Context(), list, viewerID),
		"meta":  gin.H{"limit": limit, "offset": offset},
	})
}
