package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blastsocial/backend/internal/database"
	"github.com/blastsocial/backend/internal/metrics"
	"github.com/blastsocial/backend/internal/middleware"
)

// SetupRouter wires every route behind the shared middleware stack.
func (h *Handlers) SetupRouter(environment string) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics(metrics.Get()))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		if err := database.Health(database.DB); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
		}

		postsGroup := api.Group("/posts")
		{
			postsGroup.Use(middleware.Auth(h.jwtKey))
			postsGroup.POST("", h.CreatePost)
			postsGroup.GET("/pinned", h.GetPinnedPosts)
			postsGroup.DELETE("/:id", h.DeletePost)
			postsGroup.POST("/:id/upvote", h.Upvote)
			postsGroup.POST("/:id/downvote", h.Downvote)
			postsGroup.POST("/:id/unvote", h.Unvote)
			postsGroup.POST("/:id/pin", h.PinPost)
			postsGroup.DELETE("/:id/pin", h.UnpinPost)
			postsGroup.POST("/:id/hide", h.HidePost)
			postsGroup.DELETE("/:id/hide", h.ShowPost)
			postsGroup.POST("/:id/comments", h.CreateComment)
		}

		usersGroup := api.Group("/users")
		{
			usersGroup.Use(middleware.OptionalAuth(h.jwtKey))
			usersGroup.GET("/:id/posts", h.GetUserPosts)
			usersGroup.GET("/:id/followers", h.GetFollowers)
			usersGroup.GET("/:id/followers/top", h.GetTopFollowers)
			usersGroup.GET("/:id/following", h.GetFollowing)
		}

		socialGroup := api.Group("/social")
		{
			socialGroup.Use(middleware.Auth(h.jwtKey))
			socialGroup.POST("/follow/:id", h.Follow)
			socialGroup.DELETE("/follow/:id", h.Unfollow)
		}

		tagsGroup := api.Group("/tags")
		{
			tagsGroup.Use(middleware.OptionalAuth(h.jwtKey))
			tagsGroup.GET("/:title/posts", h.GetTagPosts)
		}

		feedGroup := api.Group("/feed")
		{
			feedGroup.Use(middleware.OptionalAuth(h.jwtKey))
			feedGroup.GET("/discover", h.GetDiscoveryFeed)
			feedGroup.GET("/recent", h.GetRecentFeed)
		}
	}

	return r
}
