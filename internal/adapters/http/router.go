package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/adapters/signal"
	"github.com/vigia-cam/vigia/internal/auth"
	"github.com/vigia-cam/vigia/internal/config"
	"github.com/vigia-cam/vigia/internal/domain"
	"github.com/vigia-cam/vigia/internal/relay"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc *auth.Service, reg *relay.Registry, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/ping", func(c *gin.Context) {
		cameras, viewers := reg.Counts()
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"cameras":   cameras,
			"viewers":   viewers,
			"sessions":  svc.SessionCount(),
		})
	})

	api := r.Group("/api")
	api.POST("/login", handleLogin(svc))
	api.POST("/logout", handleLogout(svc))
	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func handleLogin(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
			return
		}
		res, err := svc.Login(req.Username, req.Password, domain.Role(req.Role))
		switch {
		case errors.Is(err, auth.ErrMissingFields):
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		case errors.Is(err, auth.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		case errors.Is(err, auth.ErrBadCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		default:
			c.JSON(http.StatusOK, gin.H{
				"token":     res.Token,
				"userId":    res.UserID,
				"role":      res.Role,
				"expiresAt": res.ExpiresAt.UnixMilli(),
			})
		}
	}
}

func handleLogout(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req logoutRequest
		if err := c.ShouldBindJSON(&req); err == nil && req.Token != "" {
			svc.Logout(req.Token)
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
