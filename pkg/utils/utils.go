package utils

import (
	stderrors "errors"
	"fmt"
	"math/rand"
	"net/http"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	}
}

// FieldError is one entry of a validation error's details.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BindArgsWithGin binds the request into req. Failures are validation
// errors; struct tag violations are listed per field in the details.
func BindArgsWithGin(c *gin.Context, req interface{}) error {
	err := c.ShouldBindWith(req, binding.Default(c.Request.Method, c.ContentType()))
	if err == nil {
		return nil
	}
	trace := fmt.Sprintf("Gin.ShouldBindWith.%s.%s", c.Request.Method, c.Request.URL.Path)

	if IsBodyTooLarge(err) {
		return BodyTooLargeError(trace)
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		return errors.Validation(trace, i18n.ERROR_INVALIDARGUMENT).WithDetails(FieldErrors(verrs))
	}
	return errors.Validation(trace, i18n.ERROR_INVALIDARGUMENT).WithDetails([]FieldError{{Field: "body", Message: "Invalid JSON body"}})
}

// IsBodyTooLarge reports whether err came from reading past the request body cap.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return stderrors.As(err, &mbe)
}

func BodyTooLargeError(trace string) error {
	return errors.Validation(trace, i18n.ERROR_REQUEST_TOO_LARGE).Code(http.StatusRequestEntityTooLarge)
}

func FieldErrors(verrs validator.ValidationErrors) []FieldError {
	list := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		list = append(list, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return list
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid", "uuid4":
		return fe.Field() + " must be a valid UUID"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	}
	return fe.Field() + " is invalid"
}

// RandomStr returns l random alphanumerics. Not for secrets.
func RandomStr(l int) string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	seed := "1234567890qwertyuiopasdfghjklzxcvbnmQWERTYUIOPASDFGHJKLZXCVBNM"
	var sb strings.Builder
	sb.Grow(l)
	for i := 0; i < l; i++ {
		sb.WriteByte(seed[r.Intn(len(seed))])
	}
	return sb.String()
}

// Random returns an int in [min, max].
func Random(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// Language represents a language and its weight (priority)
type Language struct {
	Tag    string  // Language tag, e.g., "en-US"
	Weight float64 // Weight (priority), default is 1.0
}

var acceptLanguageRe = regexp.MustCompile(`([a-zA-Z\-]+)(?:;q=([0-9\.]+))?`)

// ParseAcceptLanguage parses the Accept-Language header and returns a sorted list of languages by weight.
func ParseAcceptLanguage(header string) []Language {
	if header == "" {
		return []Language{}
	}

	var languages []Language
	for _, match := range acceptLanguageRe.FindAllStringSubmatch(header, -1) {
		weight := 1.0
		if len(match) > 2 && match[2] != "" {
			if parsed, err := strconv.ParseFloat(match[2], 64); err == nil {
				weight = parsed
			}
		}
		languages = append(languages, Language{Tag: match[1], Weight: weight})
	}

	sort.SliceStable(languages, func(i, j int) bool {
		return languages[i].Weight > languages[j].Weight
	})
	return languages
}

// MaskString keeps the first preLen and last postLen runes of s.
func MaskString(s string, preLen, postLen int) string {
	runes := []rune(s)
	if len(runes) <= preLen+postLen {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:preLen]) + "******" + string(runes[len(runes)-postLen:])
}
