package middleware

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quka-ai/supportchat/app/core"
	"github.com/quka-ai/supportchat/app/response"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
	"github.com/quka-ai/supportchat/pkg/ratelimit"
	"github.com/quka-ai/supportchat/pkg/safe"
	"github.com/quka-ai/supportchat/pkg/utils"
)

const (
	REQUEST_ID_HEADER  = "X-Request-ID"
	ADMIN_TOKEN_HEADER = "X-Admin-Token"

	RATELIMIT_LIMIT_HEADER     = "X-RateLimit-Limit"
	RATELIMIT_REMAINING_HEADER = "X-RateLimit-Remaining"
	RATELIMIT_RESET_HEADER     = "X-RateLimit-Reset"
	RETRY_AFTER_HEADER         = "Retry-After"
)

const MAX_BODY_BYTES int64 = 10 << 10

func I18n() gin.HandlerFunc {
	var allowList []string
	for k := range i18n.ALLOW_LANG {
		allowList = append(allowList, k)
	}
	l := i18n.NewLocalizer(allowList...)

	return response.ProvideResponseLocalizer(l)
}

// RequestID reuses the caller's X-Request-ID or mints one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(REQUEST_ID_HEADER)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(REQUEST_ID_HEADER, id)
	}
}

// BodyLimit caps request bodies at n bytes. Declared oversize bodies are
// rejected up front, the rest fail on the read that crosses the cap.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			response.APIError(c, utils.BodyTooLargeError("middleware.BodyLimit"))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
	}
}

func Cors(c *gin.Context) {
	method := c.Request.Method
	origin := c.Request.Header.Get("Origin")
	if origin != "" {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Header("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, X-Request-ID, X-Admin-Token")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
	}
	if method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// Recovery turns a handler panic into an INTERNAL_ERROR response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := safe.Call("http."+c.Request.Method+"."+c.Request.URL.Path, func() error {
			c.Next()
			return nil
		})
		if err != nil && !c.Writer.Written() {
			response.APIError(c, errors.New("middleware.Recovery", i18n.ERROR_INTERNAL, err))
		}
	}
}

// Metrics observes latency per route and counts error responses.
func Metrics(appCore *core.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		api := c.FullPath()
		if api == "" {
			api = "unknown"
		}
		timer := appCore.Metrics().ApiResponseTimer(api)
		c.Next()
		timer.ObserveDuration()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			appCore.Metrics().ApiErrorInc(api, strconv.Itoa(status))
		}
	}
}

func setRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header(RATELIMIT_LIMIT_HEADER, strconv.Itoa(res.Limit))
	c.Header(RATELIMIT_REMAINING_HEADER, strconv.Itoa(res.Remaining))
	c.Header(RATELIMIT_RESET_HEADER, res.ResetAt.UTC().Format(time.RFC3339))
}

// UseLimit applies policy per client ip. skip, when set, bypasses the
// limit for requests it returns true for. A rejected request never reaches
// the handler.
func UseLimit(appCore *core.Core, policy ratelimit.Policy, skip func(c *gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skip != nil && skip(c) {
			return
		}

		res, err := appCore.Limiter().Allow(c, policy, c.ClientIP())
		if err != nil {
			response.APIError(c, errors.New("middleware.UseLimit."+policy.Scope, i18n.ERROR_INTERNAL, err))
			return
		}
		setRateLimitHeaders(c, res)

		if !res.Allowed {
			appCore.Metrics().RateLimitRejectedInc(policy.Scope)
			retryAfter := res.RetryAfter(time.Now())
			slog.Warn("rate limit exceeded",
				slog.String("scope", policy.Scope),
				slog.String("ip", c.ClientIP()),
				slog.String("path", c.Request.URL.Path),
				slog.Int64("retry_after", response.RetryAfterSeconds(retryAfter)))
			response.APIError(c, errors.RateLimited("middleware.UseLimit."+policy.Scope, i18n.ERROR_TOO_MANY_REQUESTS, retryAfter))
		}
	}
}

// AdminToken guards the admin routes. An empty configured token disables
// them entirely.
func AdminToken(appCore *core.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := appCore.Cfg().Security.AdminToken
		if expected == "" {
			response.APIError(c, errors.New("middleware.AdminToken.disabled", i18n.ERROR_FORBIDDEN, nil).Code(http.StatusForbidden))
			return
		}

		given := c.GetHeader(ADMIN_TOKEN_HEADER)
		if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(expected)) != 1 {
			response.APIError(c, errors.New("middleware.AdminToken", i18n.ERROR_UNAUTHORIZED,
				fmt.Errorf("invalid admin token from %s", c.ClientIP())).Code(http.StatusUnauthorized))
			return
		}
	}
}
