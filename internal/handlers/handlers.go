package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apierrors "github.com/blastsocial/backend/internal/errors"
	"github.com/blastsocial/backend/internal/feed"
	"github.com/blastsocial/backend/internal/posts"
	"github.com/blastsocial/backend/internal/ranking"
	"github.com/blastsocial/backend/internal/social"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	posts  *posts.Service
	social *social.Service
	query  *ranking.Query
	feed   *feed.Composer
	jwtKey []byte
}

// NewHandlers creates a new handlers instance
func NewHandlers(postSvc *posts.Service, socialSvc *social.Service, query *ranking.Query, composer *feed.Composer, jwtSecret string) *Handlers {
	return &Handlers{
		posts:  postSvc,
		social: socialSvc,
		query:  query,
		feed:   composer,
		jwtKey: []byte(jwtSecret),
	}
}

// respondError maps service errors onto the API error envelope.
func respondError(c *gin.Context, err error) {
	if apiErr, ok := err.(*apierrors.APIError); ok {
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}
	switch err {
	case posts.ErrNotFound:
		apiErr := apierrors.NotFound("post")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
	case posts.ErrNotOwner:
		apiErr := apierrors.Forbidden("not the post owner")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
	case social.ErrUserNotFound:
		apiErr := apierrors.NotFound("user")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
	case social.ErrSelfFollow:
		apiErr := apierrors.BadRequest("cannot follow yourself")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
	default:
		apiErr := apierrors.InternalError("internal error")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
	}
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		apiErr := apierrors.ValidationError(name, "must be a positive integer")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return 0, false
	}
	return uint(v), true
}

func parseIntQuery(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil && v >= 0 {
		return v
	}
	return def
}
