package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	cerrors "github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
)

// Reason is the category a provider failure is mapped to.
type Reason string

const (
	REASON_QUOTA           Reason = "quota"
	REASON_AUTH            Reason = "auth"
	REASON_RATE_LIMIT      Reason = "rate_limit"
	REASON_CONTEXT_LENGTH  Reason = "context_length"
	REASON_MODEL_NOT_FOUND Reason = "model_not_found"
	REASON_UNAVAILABLE     Reason = "unavailable"
	REASON_CONNECTION      Reason = "connection"
	REASON_TIMEOUT         Reason = "timeout"
	REASON_UNKNOWN         Reason = "unknown"
)

// MessageID is the i18n id of the support safe text shown for r.
func (r Reason) MessageID() string {
	switch r {
	case REASON_QUOTA:
		return i18n.ERROR_LLM_QUOTA
	case REASON_AUTH:
		return i18n.ERROR_LLM_AUTH
	case REASON_RATE_LIMIT:
		return i18n.ERROR_LLM_RATE_LIMIT
	case REASON_CONTEXT_LENGTH:
		return i18n.ERROR_LLM_CONTEXT_LENGTH
	case REASON_MODEL_NOT_FOUND:
		return i18n.ERROR_LLM_MODEL_NOT_FOUND
	case REASON_UNAVAILABLE:
		return i18n.ERROR_LLM_UNAVAILABLE
	case REASON_CONNECTION:
		return i18n.ERROR_LLM_CONNECTION
	case REASON_TIMEOUT:
		return i18n.ERROR_LLM_TIMEOUT
	default:
		return i18n.ERROR_LLM_GENERATE_FAILED
	}
}

// ProviderError carries the raw provider failure next to its category.
// The raw error is for logs only and never shown to customers.
type ProviderError struct {
	Provider Provider
	Reason   Reason
	Err      error
}

func NewProviderError(p Provider, reason Reason, err error) *ProviderError {
	return &ProviderError{Provider: p, Reason: reason, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s request failed (%s): %v", e.Provider, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ReasonOf returns the category of err, classifying unknown errors on the fly.
func ReasonOf(err error) Reason {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ClassifyError(err)
}

// MapError converts a provider failure into an LLM error whose message is
// safe to show to customers. Errors that already are LLM errors pass through.
func MapError(trace string, err error) error {
	if err == nil {
		return nil
	}
	if cerrors.Is(err, cerrors.KindLLM) {
		return cerrors.Trace(trace, err)
	}
	return cerrors.LLM(trace, ReasonOf(err).MessageID(), err)
}

var textRules = []struct {
	reason  Reason
	needles []string
}{
	{REASON_QUOTA, []string{"insufficient_quota", "quota exceeded", "exceeded your current quota"}},
	{REASON_AUTH, []string{"invalid_api_key", "invalid api key", "api key not valid", "incorrect api key", "authentication_error", "unauthorized"}},
	{REASON_CONTEXT_LENGTH, []string{"context_length_exceeded", "maximum context length", "prompt is too long"}},
	{REASON_MODEL_NOT_FOUND, []string{"model_not_found", "model not found", "does not exist"}},
	{REASON_RATE_LIMIT, []string{"rate_limit", "rate limit", "too many requests", "status code: 429"}},
	{REASON_UNAVAILABLE, []string{"service_unavailable", "service unavailable", "overloaded", "status code: 503"}},
	{REASON_CONNECTION, []string{"econnrefused", "connection refused", "enotfound", "no such host", "connection reset"}},
	{REASON_TIMEOUT, []string{"timeout", "timed out", "deadline exceeded"}},
}

// ClassifyError maps transport level failures and well known provider
// error texts. Drivers check their typed SDK errors first and fall back here.
func ClassifyError(err error) Reason {
	if err == nil {
		return REASON_UNKNOWN
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return REASON_TIMEOUT
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return REASON_CONNECTION
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return REASON_CONNECTION
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return REASON_TIMEOUT
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return REASON_CONNECTION
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range textRules {
		for _, n := range rule.needles {
			if strings.Contains(msg, n) {
				return rule.reason
			}
		}
	}
	return REASON_UNKNOWN
}

// ReasonForStatus maps an http status returned by a provider.
func ReasonForStatus(status int) (Reason, bool) {
	switch status {
	case 401, 403:
		return REASON_AUTH, true
	case 404:
		return REASON_MODEL_NOT_FOUND, true
	case 408, 504:
		return REASON_TIMEOUT, true
	case 429:
		return REASON_RATE_LIMIT, true
	case 502, 503:
		return REASON_UNAVAILABLE, true
	}
	return "", false
}
