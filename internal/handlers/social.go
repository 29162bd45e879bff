package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blastsocial/backend/internal/middleware"
)

// Follow creates a follow edge from the caller to :id.
func (h *Handlers) Follow(c *gin.Context) {
	userID := middleware.UserID(c)
	followeeID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.social.Follow(c.Request.Context(), userID, followeeID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": true})
}

// Unfollow removes the follow edge from the caller to :id.
func (h *Handlers) Unfollow(c *gin.Context) {
	userID := middleware.UserID(c)
	followeeID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.social.Unfollow(c.Request.Context(), userID, followeeID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": false})
}

// GetFollowers lists a user's followers with followee flags and recent posts.
func (h *Handlers) GetFollowers(c *gin.Context) {
	viewerID := middleware.UserID(c)
	userID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	entries, err := h.social.Followers(c.Request.Context(), userID, viewerID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": listEntryViews(entries),
		"meta":  gin.H{"limit": limit, "offset": offset},
	})
}

// GetFollowing lists who a user follows.
func (h *Handlers) GetFollowing(c *gin.Context) {
	viewerID := middleware.UserID(c)
	userID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	entries, err := h.social.Following(c.Request.Context(), userID, viewerID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": listEntryViews(entries),
		"meta":  gin.H{"limit": limit, "offset": offset},
	})
}

// GetTopFollowers lists a user's followers ranked by popularity.
func (h *Handlers) GetTopFollowers(c *gin.Context) {
	viewerID := middleware.UserID(c)
	userID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	ids, err := h.query.TopFollowerIDs(c.Request.Context(), userID, int64(offset), int64(offset+limit-1))
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := h.query.MaterializeUsers(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}

	followees := h.social.FolloweeSet(c.Request.Context(), viewerID, ids)
	views := make([]UserView, 0, len(users))
	for i := range users {
		views = append(views, userView(&users[i], followees[users[i].ID]))
	}

	c.JSON(http.StatusOK, gin.H{
		"users": views,
		"meta":  gin.H{"limit": limit, "offset": offset},
	})
}
