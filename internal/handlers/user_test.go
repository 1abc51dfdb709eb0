package handlers

import (
	"net/http"
	"testing"

	"github.com/anonto42/campus-notify/backend/internal/middleware"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
)

func TestGetProfile(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	NewUserHandler(repositories.NewPostgresUserRepository(s.db)).
		RegisterProfileRoutes(s.e.Group("/api/v1"), middleware.JWTAuth(testSecret))

	code, out := s.do(t, http.MethodGet, "/api/v1/profile", "s-1", "")
	if code != http.StatusOK {
		t.Fatalf("profile = %d %v", code, out)
	}
	data := out["data"].(map[string]any)
	if data["id"] != "s-1" || data["section"] != "A" || data["year"] != float64(2) {
		t.Errorf("profile = %v", data)
	}

	code, _ = s.do(t, http.MethodGet, "/api/v1/profile", "", "")
	if code != http.StatusUnauthorized {
		t.Errorf("anonymous profile = %d, want 401", code)
	}
}
