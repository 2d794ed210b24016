package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/atabot/server/internal/observability"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func serve(e *echo.Echo, method, target, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(3)
	e := echo.New()
	e.Use(rl.Middleware())
	e.GET("/", okHandler)

	for i := range 3 {
		rec := serve(e, http.MethodGet, "/", "10.0.0.1:1234")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := serve(e, http.MethodGet, "/", "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	rec = serve(e, http.MethodGet, "/", "10.0.0.2:1234")
	assert.Equal(t, http.StatusOK, rec.Code, "other clients keep their own budget")
}

func TestRateLimiter_Prune(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10)
	rl.clock = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(10 * time.Minute)
	rl.Allow("b")

	assert.Equal(t, 2, rl.Len())
	assert.Equal(t, 1, rl.Prune(5*time.Minute))
	assert.Equal(t, 1, rl.Len())
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{"plain", "Berapa harga website?", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"at limit", strings.Repeat("a", MaxMessageLength), false},
		{"over limit", strings.Repeat("a", MaxMessageLength+1), true},
		{"multibyte at limit", strings.Repeat("é", MaxMessageLength), false},
		{"script block", "hi <SCRIPT type=x>alert(1)</script>", true},
		{"javascript url", "click JavaScript:alert(1)", true},
		{"data url", "data:text/html;base64,xx", true},
		{"lone script tag", "what is <script", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.message)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello   world", "hello world"},
		{"<b>bold</b> text", "bold text"},
		{"  line\n\tbreak  ", "line break"},
		{"<p>a</p><p>b</p>", "a b"},
		{"fish &amp; chips", "fish & chips"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeInput(tt.input))
		})
	}
}

func TestQueryGuard(t *testing.T) {
	e := echo.New()
	e.Use(QueryGuard())
	e.GET("/", okHandler)

	tests := []struct {
		target string
		status int
	}{
		{"/", http.StatusOK},
		{"/?session_id=abc", http.StatusOK},
		{"/?q=%3Cscript%3Ealert(1)", http.StatusBadRequest},
		{"/?next=javascript:alert(1)", http.StatusBadRequest},
		{"/?img=x%20onerror=alert(1)", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(e, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSecureHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecureHeaders())
	e.GET("/", okHandler)

	rec := serve(e, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestID(logger))
	e.Use(RequestLogger(logger, nil))
	var seen string
	e.GET("/", func(c echo.Context) error {
		rc, ok := observability.FromContext(c.Request().Context())
		require.True(t, ok)
		seen = rc.RequestID
		return c.String(http.StatusOK, "ok")
	})

	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{"generated when absent", "", false},
		{"client id reused", "abc-123_x.y", true},
		{"malformed id replaced", "bad id<script>", false},
		{"overlong id replaced", strings.Repeat("a", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(echo.HeaderXRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			got := rec.Header().Get(echo.HeaderXRequestID)
			assert.NotEmpty(t, got)
			assert.Equal(t, got, seen)
			if tt.reused {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
			}

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
			assert.Equal(t, "http request", line["msg"])
			assert.Equal(t, got, line[observability.LogFieldRequestID])
			assert.NotContains(t, line, observability.LogFieldSessionID)
		})
	}
}
