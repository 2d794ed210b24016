package v1

import (
	"bytes"
	"crypto/subtle"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"golang.org/x/crypto/bcrypt"

	"github.com/hrygo/atabot/internal/profile"
	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/server/internal/observability"
	"github.com/hrygo/atabot/server/middleware"
	"github.com/hrygo/atabot/server/service/chat"
	"github.com/hrygo/atabot/server/stats"
	"github.com/hrygo/atabot/store"
)

const landingMarkdown = `# Atabot

Retrieval-augmented customer service chat.

- ` + "`POST /api/v1/chat/message`" + ` answers one message
- ` + "`POST /api/v1/chat/message/stream`" + ` streams the answer as server-sent events
- ` + "`GET /api/v1/chat/session/create`" + ` starts a session
- ` + "`GET /api/v1/health`" + ` reports readiness
- ` + "`GET /metrics`" + ` exposes Prometheus metrics
`

type APIV1Service struct {
	Profile   *profile.Profile
	Chat      *chat.Service
	Knowledge *store.Store
	Analytics *stats.Recorder
	Metrics   *observability.Metrics

	limiter   *middleware.RateLimiter
	validate  *validator.Validate
	adminHash []byte
	landing   []byte
}

func NewAPIV1Service(profile *profile.Profile, chatService *chat.Service, knowledge *store.Store, analytics *stats.Recorder, metrics *observability.Metrics) (*APIV1Service, error) {
	adminHash := []byte(profile.AdminPasswordHash)
	if len(adminHash) == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(profile.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrap(err, "failed to hash admin password")
		}
		adminHash = hash
	}

	var landing bytes.Buffer
	if err := goldmark.Convert([]byte(landingMarkdown), &landing); err != nil {
		return nil, errors.Wrap(err, "failed to render landing page")
	}

	return &APIV1Service{
		Profile:   profile,
		Chat:      chatService,
		Knowledge: knowledge,
		Analytics: analytics,
		Metrics:   metrics,
		limiter:   middleware.NewRateLimiter(profile.RateLimitPerMinute),
		validate:  validator.New(),
		adminHash: adminHash,
		landing:   landing.Bytes(),
	}, nil
}

// Limiter exposes the per-client rate limiter so the server can prune it.
func (s *APIV1Service) Limiter() *middleware.RateLimiter {
	return s.limiter
}

// RegisterRoutes registers the HTTP API with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.Use(echomw.Recover())
	echoServer.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	echoServer.Use(middleware.SecureHeaders())
	echoServer.Use(middleware.RequestID(nil))
	echoServer.Use(middleware.RequestLogger(nil, s.Metrics))
	echoServer.Use(middleware.QueryGuard())

	echoServer.GET("/", s.Landing)
	echoServer.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))

	api := echoServer.Group("/api/v1")
	api.GET("/health", s.Health)
	api.RouteNotFound("/*", func(c echo.Context) error {
		return fail(c, aierrors.NotFound("endpoint "+c.Request().URL.Path))
	})

	chatGroup := api.Group("/chat", s.limiter.Middleware())
	chatGroup.POST("/message", s.SendMessage)
	chatGroup.POST("/message/stream", s.SendMessageStream)
	chatGroup.GET("/session/create", s.CreateSession)
	chatGroup.GET("/history/:session_id", s.GetHistory)
	chatGroup.DELETE("/session/:session_id", s.ClearSession)
	chatGroup.POST("/reload", s.Reload, s.adminAuth())

	analytics := api.Group("/analytics")
	analytics.GET("/stats", s.GetStats, s.adminAuth())
	analytics.GET("/overview", s.GetOverview, s.adminAuth())
	analytics.POST("/feedback", s.SubmitFeedback, s.limiter.Middleware())

	admin := api.Group("/admin", s.adminAuth())
	admin.GET("/data", s.GetData)
	admin.POST("/data", s.UpdateData)
	admin.POST("/bot-config", s.UpdateBotConfig)
	admin.GET("/backups", s.ListBackups)
}

// adminAuth guards the data editing endpoints with HTTP basic auth. Rejected
// credentials get the UNAUTHORIZED error body.
func (s *APIV1Service) adminAuth() echo.MiddlewareFunc {
	basicAuth := echomw.BasicAuthWithConfig(echomw.BasicAuthConfig{
		Realm: "atabot",
		Validator: func(username, password string, _ echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.Profile.AdminUsername)) == 1
			passOK := bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) == nil
			return userOK && passOK, nil
		},
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := basicAuth(next)
		return func(c echo.Context) error {
			err := guarded(c)
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) && httpErr.Code == http.StatusUnauthorized {
				return fail(c, aierrors.Unauthorized("admin credentials required"))
			}
			return err
		}
	}
}
