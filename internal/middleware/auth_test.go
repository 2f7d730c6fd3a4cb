package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"syncplane/internal/auth"
)

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

	tok, err := auth.CreateToken("acct-1", cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	foreign, err := auth.CreateToken("acct-1", auth.TokenConfig{Secret: "other", Expiry: time.Hour, Issuer: "test"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	r := gin.New()
	r.GET("/", RequireAuth(cfg), func(c *gin.Context) {
		accountID, ok := AccountIDFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, accountID)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid bearer", "Bearer " + tok, http.StatusOK},
		{"case-insensitive scheme", "bearer " + tok, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + tok, http.StatusUnauthorized},
		{"scheme without token", "Bearer", http.StatusUnauthorized},
		{"foreign signature", "Bearer " + foreign, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if tc.want == http.StatusOK && w.Body.String() != "acct-1" {
				t.Fatalf("expected account id in context, got %q", w.Body.String())
			}
		})
	}
}
