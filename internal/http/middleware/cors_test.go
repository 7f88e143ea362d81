package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	allowed := []string{"http://localhost:3000", "https://kivo.example.com"}
	cases := map[string]string{
		"http://localhost:3000":    "http://localhost:3000",
		"https://kivo.example.com": "https://kivo.example.com",
		"https://evil.example.com": "",
	}

	for origin, want := range cases {
		t.Run(origin, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(CORS(allowed))
			r.OPTIONS("/api/upload", func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
			req.Header.Set("Origin", origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != want {
				t.Fatalf("unexpected allow-origin header: got=%q want=%q", got, want)
			}
		})
	}
}
