package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blastsocial/backend/internal/feed"
	"github.com/blastsocial/backend/internal/middleware"
)

// GetDiscoveryFeed returns one page of the blended popular/random user feed.
func (h *Handlers) GetDiscoveryFeed(c *gin.Context) {
	viewerID := middleware.UserID(c)
	page := parseIntQuery(c, "page", 0)
	pageSize := parseIntQuery(c, "page_size", feed.DefaultPageSize)

	result, err := h.feed.Compose(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	ids := make([]uint, 0, len(result.Users))
	for i := range result.Users {
		ids = append(ids, result.Users[i].ID)
	}
	followees := h.social.FolloweeSet(c.Request.Context(), viewerID, ids)

	views := make([]UserView, 0, len(result.Users))
	for i := range result.Users {
		views = append(views, userView(&result.Users[i], followees[result.Users[i].ID]))
	}

	c.JSON(http.StatusOK, gin.H{
		"users": views,
		"meta": gin.H{
			"total":     result.Total,
			"page":      result.Page,
			"page_size": result.PageSize,
		},
	})
}

// GetRecentFeed returns the chronological post feed.
func (h *Handlers) GetRecentFeed(c *gin.Context) {
	viewerID := middleware.UserID(c)
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	list, err := h.feed.Recent(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": h.postViews(c.Request.Context(), list, viewerID),
		"meta":  gin.H{"limit": limit, "offset": offset},
	})
}
