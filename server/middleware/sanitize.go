package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/html"

	aierrors "github.com/hrygo/atabot/server/internal/errors"
)

// MaxMessageLength bounds a chat message, in characters.
const MaxMessageLength = 1000

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:text/html`),
}

var suspiciousQuery = []string{"<script", "javascript:", "data:text/html", "vbscript:", "onerror=", "onload="}

// ValidateMessage rejects empty, oversized or script-bearing messages.
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message cannot be empty")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return errors.New("message too long (max 1000 characters)")
	}
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(message) {
			return errors.New("message contains potentially dangerous content")
		}
	}
	return nil
}

// SanitizeInput strips markup and collapses whitespace.
func SanitizeInput(input string) string {
	var text strings.Builder
	z := html.NewTokenizer(strings.NewReader(input))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.Join(strings.Fields(text.String()), " ")
			}
			return strings.Join(strings.Fields(input), " ")
		case html.TextToken:
			text.Write(z.Text())
			text.WriteByte(' ')
		}
	}
}

// QueryGuard rejects requests whose query string carries script payloads.
func QueryGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().URL.RawQuery
			if raw == "" {
				return next(c)
			}
			query, err := url.QueryUnescape(raw)
			if err != nil {
				query = raw
			}
			query = strings.ToLower(query)
			for _, needle := range suspiciousQuery {
				if strings.Contains(query, needle) {
					return ErrorJSON(c, http.StatusBadRequest,
						aierrors.ErrCodeInvalidArgument, "Invalid request parameters")
				}
			}
			return next(c)
		}
	}
}
