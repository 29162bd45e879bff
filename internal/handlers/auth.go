package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apierrors "github.com/blastsocial/backend/internal/errors"
	"github.com/blastsocial/backend/internal/middleware"
)

const tokenTTL = 30 * 24 * time.Hour

// Register creates a new account and returns a signed token.
func (h *Handlers) Register(c *gin.Context) {
	var req struct {
		Phone    string `json:"phone" binding:"required"`
		Username string `json:"username" binding:"required,min=3,max=15"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiErr := apierrors.BadRequest(err.Error())
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	user, err := h.social.Register(c.Request.Context(), req.Phone, req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := middleware.IssueToken(h.jwtKey, user.ID, tokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":  userView(user, false),
		"token": token,
	})
}

// Login verifies credentials and returns a signed token.
func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiErr := apierrors.BadRequest(err.Error())
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	user, err := h.social.CheckPassword(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apiErr := apierrors.Unauthorized("invalid credentials")
		c.JSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	token, err := middleware.IssueToken(h.jwtKey, user.ID, tokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  userView(user, false),
		"token": token,
	})
}
