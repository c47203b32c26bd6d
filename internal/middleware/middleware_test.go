package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("proctoring ", 500)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/events", func(c *gin.Context) { c.String(http.StatusOK, large) })

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		encoded bool
		body    string
	}{
		{"large body is compressed", "/large", map[string]string{"Accept-Encoding": "gzip, br"}, true, large},
		{"small body stays plain", "/small", map[string]string{"Accept-Encoding": "br"}, false, "ok"},
		{"client without br", "/large", map[string]string{"Accept-Encoding": "gzip"}, false, large},
		{"event stream passes through", "/events", map[string]string{"Accept-Encoding": "br", "Accept": "text/event-stream"}, false, large},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			var body io.Reader = w.Body
			if tt.encoded {
				assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
				body = brotli.NewReader(w.Body)
			} else {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
			}
			got, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(got))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	assert.True(t, rl.Allow("user:1"))
	assert.True(t, rl.Allow("user:1"))
	assert.False(t, rl.Allow("user:1"))
	assert.True(t, rl.Allow("user:2"), "keys have separate buckets")
}

func TestRateLimiter_Middleware(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(0.001, 1).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 2)
	for range 2 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.Use(NoStore())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
