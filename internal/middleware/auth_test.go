package middleware

import (
	"exam_prep_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

func newRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(testSecret)}
	if len(roles) > 0 {
		handlers = append(handlers, RoleMiddleware(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, "%d", util.GetUserFromContext(c).UserID)
	})
	r.GET("/me", handlers...)
	return r
}

func token(t *testing.T, userID uint, role, secret string, exp time.Duration) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, secret, exp)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + token(t, 1, util.RoleStudent, "another-secret-another-secret-xx", time.Hour), http.StatusUnauthorized},
		{"expired", "Bearer " + token(t, 1, util.RoleStudent, testSecret, -time.Minute), http.StatusUnauthorized},
		{"no subject", "Bearer " + token(t, 0, util.RoleStudent, testSecret, time.Hour), http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, 42, util.RoleStudent, testSecret, time.Hour), http.StatusOK},
	}
	r := newRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK && rec.Body.String() != "42" {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(util.RoleTeacher)
	cases := []struct {
		role string
		want int
	}{
		{util.RoleStudent, http.StatusForbidden},
		{util.RoleTeacher, http.StatusOK},
		{util.RoleAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, 7, tc.role, testSecret, time.Hour))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
