package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatusCode(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:    http.StatusBadRequest,
		KindNotFound:      http.StatusNotFound,
		KindLLM:           http.StatusServiceUnavailable,
		KindDatabase:      http.StatusInternalServerError,
		KindRateLimit:     http.StatusTooManyRequests,
		KindConfiguration: http.StatusInternalServerError,
		KindInternal:      http.StatusInternalServerError,
	}
	for kind, code := range cases {
		assert.Equal(t, code, kind.StatusCode(), kind)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("test", "error.notfound")))

	wrapped := fmt.Errorf("outer: %w", Validation("test", "error.invalidargument"))
	assert.Equal(t, KindValidation, KindOf(wrapped))
}

func TestTraceKeepsKind(t *testing.T) {
	err := Trace("outer", Database("inner", "error.database", stderrors.New("conn reset")))
	assert.Equal(t, KindDatabase, err.GetKind())
	assert.Equal(t, http.StatusInternalServerError, err.GetCode())
	assert.Contains(t, err.Error(), "inner->outer")
}

func TestRetryAfter(t *testing.T) {
	err := RateLimited("limiter", "error.tooManyRequests", 42*time.Second)
	d, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, d)
	assert.Equal(t, http.StatusTooManyRequests, err.GetCode())

	_, ok = RetryAfter(Validation("x", "y"))
	assert.False(t, ok)
}

func TestMessageFallsBackToCause(t *testing.T) {
	err := New("t", "", stderrors.New("cause text"))
	assert.Equal(t, "cause text", err.Message())
	assert.ErrorIs(t, err, err.Unwrap())
}
