package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind is the stable, client facing error code.
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindNotFound      Kind = "NOT_FOUND"
	KindLLM           Kind = "LLM_ERROR"
	KindDatabase      Kind = "DATABASE_ERROR"
	KindRateLimit     Kind = "RATE_LIMIT_ERROR"
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindInternal      Kind = "INTERNAL_ERROR"
)

// StatusCode is the http status a kind is reported with.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindLLM:
		return http.StatusServiceUnavailable
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type CustomizedError struct {
	cause      error
	message    string
	trace      []string
	wrap       error
	code       int
	kind       Kind
	retryAfter time.Duration
	data       map[string]interface{}
	details    any
}

func (e *CustomizedError) WithData(data map[string]interface{}) *CustomizedError {
	e.data = data
	return e
}

func (e *CustomizedError) Data() map[string]interface{} {
	return e.data
}

func (e *CustomizedError) WithDetails(details any) *CustomizedError {
	e.details = details
	return e
}

func (e *CustomizedError) Details() any {
	return e.details
}

func (e *CustomizedError) Code(c int) *CustomizedError {
	e.code = c
	return e
}

func (e *CustomizedError) GetCode() int {
	return e.code
}

// WithKind sets the kind and the matching http status.
func (e *CustomizedError) WithKind(k Kind) *CustomizedError {
	e.kind = k
	e.code = k.StatusCode()
	return e
}

func (e *CustomizedError) GetKind() Kind {
	if e.kind == "" {
		return KindInternal
	}
	return e.kind
}

func (e *CustomizedError) GetRetryAfter() time.Duration {
	return e.retryAfter
}

func New(trace, message string, err error) *CustomizedError {
	code := http.StatusInternalServerError
	return &CustomizedError{
		cause:   err,
		message: message,
		trace:   []string{trace},
		code:    code,
	}
}

func Validation(trace, message string) *CustomizedError {
	return New(trace, message, nil).WithKind(KindValidation)
}

func NotFound(trace, message string) *CustomizedError {
	return New(trace, message, nil).WithKind(KindNotFound)
}

func LLM(trace, message string, err error) *CustomizedError {
	return New(trace, message, err).WithKind(KindLLM)
}

func Database(trace, message string, err error) *CustomizedError {
	return New(trace, message, err).WithKind(KindDatabase)
}

func Configuration(trace, message string, err error) *CustomizedError {
	return New(trace, message, err).WithKind(KindConfiguration)
}

func RateLimited(trace, message string, retryAfter time.Duration) *CustomizedError {
	e := New(trace, message, nil).WithKind(KindRateLimit)
	e.retryAfter = retryAfter
	return e
}

func (e *CustomizedError) Trace(trace string) *CustomizedError {
	e.trace = append(e.trace, trace)
	return e
}

func Wrap(err error, trace, message string) *CustomizedError {
	ce := &CustomizedError{
		cause:   err,
		message: message,
		trace:   []string{trace},
		wrap:    err,
	}
	if income, ok := err.(*CustomizedError); ok {
		ce.code = income.code
		ce.kind = income.kind
		ce.retryAfter = income.retryAfter
		ce.data = income.data
	}
	return ce
}

func Trace(trace string, err error) *CustomizedError {
	if ce, ok := err.(*CustomizedError); ok {
		ce.trace = append(ce.trace, trace)
		return ce
	}
	return Wrap(err, trace, err.Error())
}

func (e *CustomizedError) Message() string {
	if e.message == "" && e.cause != nil {
		return e.cause.Error()
	}
	return e.message
}

func (e *CustomizedError) Unwrap() error {
	return e.cause
}

func (e *CustomizedError) Error() string {
	otherDetails := `""`
	if ce, ok := e.wrap.(*CustomizedError); ok {
		otherDetails = ce.Error()
	} else if e.wrap != nil {
		otherDetails = fmt.Sprint("\"", e.wrap.Error(), "\"")
	}
	return fmt.Sprintf(`{"trace":"%s","kind":"%s","code":%d,"msg":"%s","error":"%v","wrapd":%s}`, strings.Join(e.trace, "->"), e.GetKind(), e.code, e.message, e.cause, otherDetails)
}

// As finds the outermost CustomizedError in err's chain.
func As(err error) (*CustomizedError, bool) {
	var ce *CustomizedError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf reports the kind of err, INTERNAL_ERROR for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ce, ok := As(err); ok {
		return ce.GetKind()
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RetryAfter returns the wait carried by a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	ce, ok := As(err)
	if !ok || ce.GetKind() != KindRateLimit {
		return 0, false
	}
	return ce.retryAfter, true
}
