package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("Blocks after budget is exhausted", func(t *testing.T) {
		t.Setenv("RATELIMIT_ENABLED", "true")
		t.Setenv("RATELIMIT_ASSISTANT", "2")

		handler := RateLimit("assistant")(okHandler())

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/assistant", nil))
			require.Equal(t, http.StatusOK, w.Code)
		}

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/assistant", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"), "denied requests must say when to retry")
	})

	t.Run("Disabled config passes through", func(t *testing.T) {
		t.Setenv("RATELIMIT_ENABLED", "false")
		t.Setenv("RATELIMIT_ASSISTANT", "1")

		handler := RateLimit("assistant")(okHandler())

		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/assistant", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("Distinct clients have separate budgets", func(t *testing.T) {
		t.Setenv("RATELIMIT_ENABLED", "true")
		t.Setenv("RATELIMIT_ASSISTANT", "1")

		handler := RateLimit("assistant")(okHandler())

		send := func(ip string) int {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/assistant", nil)
			req.Header.Set("X-Forwarded-For", ip)
			handler.ServeHTTP(w, req)
			return w.Code
		}

		require.Equal(t, http.StatusOK, send("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
		assert.Equal(t, http.StatusOK, send("10.0.0.2"))
	})
}
