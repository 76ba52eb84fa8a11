package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"webhook-recorder/internal/auth"

	"github.com/gin-gonic/gin"
)

func withIdentity(role string, services ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "alice", role, services)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func serve(t *testing.T, path string, chain ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	chain = append(chain, func(c *gin.Context) { c.Status(200) })
	r.POST("/api/v1/webhook/:service/:id/forward", chain...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	code := serve(t, "/api/v1/webhook/github/1/forward", withIdentity(RoleAdmin), RequireAnyRole(RoleOperator))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_ViewerCannotForward(t *testing.T) {
	code := serve(t, "/api/v1/webhook/github/1/forward", withIdentity(RoleViewer), RequireAnyRole(RoleOperator))
	if code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	code := serve(t, "/api/v1/webhook/github/1/forward", RequireAnyRole(RoleOperator))
	if code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireServiceAccess(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		services []string
		want     int
	}{
		{"unrestricted token", RoleViewer, nil, 200},
		{"listed service", RoleViewer, []string{"stripe", "github"}, 200},
		{"unlisted service", RoleOperator, []string{"stripe"}, 403},
		{"admin ignores list", RoleAdmin, []string{"stripe"}, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := serve(t, "/api/v1/webhook/github/1/forward", withIdentity(tt.role, tt.services...), RequireServiceAccess())
			if code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, code)
			}
		})
	}
}
