package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pinkhuff/blog-api/config"
	"github.com/pinkhuff/blog-api/middleware"
	"github.com/pinkhuff/blog-api/utils"
)

const tokenLifetime = 24 * time.Hour

// AuthController issues and revokes the single admin credential that
// guards mutating operations.
type AuthController struct{}

// NewAuthController creates a new AuthController instance.
func NewAuthController() *AuthController {
	return &AuthController{}
}

// Login verifies the admin password against the configured bcrypt hash
// and issues a bearer token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "password is required")
		return
	}

	cfg := config.Get()
	if cfg.AdminPasswordHash == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "admin authentication not configured")
		return
	}
	if !utils.CheckPassword(cfg.AdminPasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "authentication failed")
		return
	}

	token, err := utils.GenerateToken(tokenLifetime)
	if err != nil {
		utils.Sugar.Errorf("token generation failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to issue token")
		return
	}

	utils.Success(ctx, gin.H{
		"token":      token,
		"expires_in": tokenLifetime.String(),
	})
}

// Logout revokes the presented token until its natural expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	tokenVal, exists := ctx.Get(middleware.ContextTokenKey)
	token, _ := tokenVal.(string)
	if !exists || token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "no token to revoke")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "invalid token")
		return
	}

	utils.BlacklistToken(token, claims.ExpiresAt.Time)
	utils.Success(ctx, gin.H{"message": "logged out"})
}
