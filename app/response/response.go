package response

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
)

const (
	RequestIDKey = "request_id"
	LocalizerKey = "i18n"
)

func ProvideResponseLocalizer(l i18n.Localizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(LocalizerKey, l)
	}
}

func InjectResponseLocalizer(c *gin.Context) i18n.Localizer {
	if l, ok := c.Get(LocalizerKey); ok {
		return l.(i18n.Localizer)
	}
	return i18n.Default()
}

// ErrorBody is the json shape of every failed request.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func GetLangFromRequestOrDefault(c *gin.Context) string {
	lang := c.Request.Header.Get("Accept-Language")
	if i18n.ALLOW_LANG[lang] {
		return lang
	}
	return i18n.DEFAULT_LANG
}

// RetryAfterSeconds rounds d up to whole seconds.
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// APIError writes err as ErrorBody. Errors that are not CustomizedError
// are reported as INTERNAL_ERROR with a generic message.
func APIError(c *gin.Context, err error) {
	c.Abort()
	l := InjectResponseLocalizer(c)
	lang := GetLangFromRequestOrDefault(c)

	body := ErrorBody{Error: string(errors.KindInternal)}
	status := http.StatusInternalServerError

	if ce, ok := errors.As(err); ok {
		body.Error = string(ce.GetKind())
		body.Details = ce.Details()
		status = ce.GetCode()
		if status == 0 {
			status = ce.GetKind().StatusCode()
		}

		data := map[string]interface{}{}
		for k, v := range ce.Data() {
			data[k] = v
		}
		if retryAfter, ok := errors.RetryAfter(err); ok {
			seconds := RetryAfterSeconds(retryAfter)
			data["RetryAfter"] = seconds
			c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		}
		body.Message = l.GetWithData(lang, ce.Message(), data)
		if ce.GetKind() == errors.KindInternal {
			if status >= http.StatusInternalServerError {
				body.Message = l.Get(lang, i18n.ERROR_INTERNAL)
			} else {
				body.Error = statusCode(status)
			}
		}
	} else {
		body.Message = l.Get(lang, i18n.ERROR_INTERNAL)
	}

	c.JSON(status, body)
	printErrorLog(c, status, err)
}

// statusCode names a plain http status the way kinds are named, e.g.
// UNAUTHORIZED.
func statusCode(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// APIErrorWithStatus writes a plain error body without going through the
// error kinds. Webhooks use it for their fixed replies.
func APIErrorWithStatus(c *gin.Context, status int, message string) {
	c.Abort()
	c.JSON(status, gin.H{"error": message})
	printErrorLog(c, status, errors.New("response.APIErrorWithStatus", message, nil))
}

func printErrorLog(c *gin.Context, status int, err error) {
	slog.Error("response error",
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("method", c.Request.Method),
		slog.Int("code", status),
		slog.String("request_id", c.GetString(RequestIDKey)),
		slog.String("ip", c.ClientIP()),
		slog.String("error", err.Error()))
}

func printSuccessLog(c *gin.Context, status int) {
	slog.Info("request success",
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("method", c.Request.Method),
		slog.Int("code", status),
		slog.String("request_id", c.GetString(RequestIDKey)),
		slog.String("ip", c.ClientIP()))
}

// APISuccess writes data with 200.
func APISuccess(c *gin.Context, data interface{}) {
	APIStatus(c, http.StatusOK, data)
}

func APIStatus(c *gin.Context, status int, data interface{}) {
	c.Abort()
	if data == nil {
		c.Status(status)
	} else {
		c.JSON(status, data)
	}
	printSuccessLog(c, status)
}
