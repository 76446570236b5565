package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/axellelanca/campaignshortener/internal/middleware"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler exchanges credentials for a bearer token.
func LoginHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		user, err := d.Auth.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func LogoutHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Auth.Logout(c.Request.Context(), c.GetString(middleware.TokenKey)); err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		me := *user
		me.Token = ""
		c.JSON(http.StatusOK, me)
	}
}
