package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-journey/internal/assistant"
	"go-journey/internal/auth"
	"go-journey/internal/config"
	"go-journey/internal/journey"
	"go-journey/internal/member"
)

const tokenLifetime = 7 * 24 * time.Hour

// GET /health
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GET /config
func configHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only return non-sensitive config fields
		c.JSON(http.StatusOK, gin.H{
			"server": gin.H{
				"host":    cfg.Server.Host,
				"port":    cfg.Server.Port,
				"subpath": cfg.Server.Subpath,
			},
			"llm": gin.H{
				"name":  cfg.LLM.Name,
				"model": cfg.LLM.Model,
			},
			"journey": gin.H{
				"switch_threshold": cfg.Journey.SwitchThreshold,
				"history_source":   cfg.Journey.HistorySource,
			},
			"scheduler": gin.H{
				"enabled": cfg.Scheduler.Enabled,
				"spec":    cfg.Scheduler.Spec,
			},
		})
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// POST /auth/login
func (s *server) loginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid request"}})
		return
	}
	if err := s.operator.Authenticate(req.Username, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid username or password"}})
		return
	}
	token, err := auth.GenerateJWT(s.Config.Server.JWTSecret, req.Username, auth.RoleOperator, tokenLifetime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to generate token"}})
		return
	}
	if err := s.Sessions.Set(c.Request.Context(), req.Username, token, auth.SessionIdle); err != nil {
		s.logger.Warn("Failed to store session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to start session"}})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, Username: req.Username, Role: auth.RoleOperator})
}

// POST /auth/logout
func (s *server) logoutHandler(c *gin.Context) {
	_ = s.Sessions.Delete(c.Request.Context(), c.GetString("username"))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// GET /ws/journey?token=...&member_id=...
func (s *server) wsJourneyHandler(c *gin.Context) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "missing JWT"}})
		return
	}
	token = strings.TrimPrefix(token, "Bearer ")
	claims, err := auth.ParseJWT(s.Config.Server.JWTSecret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "invalid JWT"}})
		return
	}
	if current, err := s.Sessions.Get(c.Request.Context(), claims.Username); err != nil || current != token {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Session expired or invalid"}})
		return
	}
	s.Hub.Serve(c.Writer, c.Request, c.Query("member_id"))
}

// writeError maps journey and store errors to HTTP statuses
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := journey.ErrorKind(err)
	switch {
	case errors.Is(err, journey.ErrMemberNotFound), errors.Is(err, member.ErrNotFound):
		status = http.StatusNotFound
		kind = journey.KindMemberNotFound
	case errors.Is(err, assistant.ErrUnavailable):
		status = http.StatusServiceUnavailable
		kind = "assistant_unavailable"
	case kind == journey.KindCanceled, journey.IsSoft(err):
		status = http.StatusServiceUnavailable
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": gin.H{"kind": kind, "message": err.Error()}})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": msg}})
}
