package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func secretRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", SharedSecret(secret), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestSharedSecret(t *testing.T) {
	cases := []struct {
		name       string
		secret     string
		header     string
		value      string
		wantStatus int
	}{
		{"bearer match", "s3cret", "Authorization", "Bearer s3cret", http.StatusOK},
		{"relay header match", "s3cret", "X-Relay-Secret", "s3cret", http.StatusOK},
		{"wrong secret", "s3cret", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "s3cret", "", "", http.StatusUnauthorized},
		{"unconfigured secret", "", "Authorization", "Bearer anything", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := secretRouter(tc.secret)
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}
