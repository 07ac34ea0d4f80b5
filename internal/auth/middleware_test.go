package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const mwSecret = "secret"

func setupRouter(sessions Sessions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(mwSecret, sessions))
	r.GET("/test", func(c *gin.Context) {
		c.String(200, c.GetString("username"))
	})
	return r
}

func doRequest(r *gin.Engine, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	w := doRequest(setupRouter(NewMemorySessions()), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	w := doRequest(setupRouter(NewMemorySessions()), "not.a.valid.jwt")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid JWT, got %d", w.Code)
	}
}

func TestAuthMiddleware_SessionInvalid(t *testing.T) {
	sessions := NewMemorySessions()
	token, _ := GenerateJWT(mwSecret, "operator", RoleOperator, time.Hour)
	w := doRequest(setupRouter(sessions), token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a session, got %d", w.Code)
	}

	// a newer login replaces the old token
	_ = sessions.Set(context.Background(), "operator", "other-token", time.Hour)
	w = doRequest(setupRouter(sessions), token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for stale token, got %d", w.Code)
	}
}

func TestAuthMiddleware_Success(t *testing.T) {
	sessions := NewMemorySessions()
	token, _ := GenerateJWT(mwSecret, "operator", RoleOperator, time.Hour)
	_ = sessions.Set(context.Background(), "operator", token, time.Minute)

	w := doRequest(setupRouter(sessions), token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "operator" {
		t.Errorf("expected username in context, got %q", w.Body.String())
	}
}

func TestMemorySessions_Expiry(t *testing.T) {
	s := NewMemorySessions()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "operator", "tok", time.Minute)
	if got, err := s.Get(ctx, "operator"); err != nil || got != "tok" {
		t.Fatalf("expected live session, got %q %v", got, err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "operator"); err != ErrNoSession {
		t.Errorf("expected ErrNoSession after expiry, got %v", err)
	}

	_ = s.Set(ctx, "operator", "tok", time.Minute)
	_ = s.Delete(ctx, "operator")
	if _, err := s.Get(ctx, "operator"); err != ErrNoSession {
		t.Errorf("expected ErrNoSession after delete, got %v", err)
	}
}
