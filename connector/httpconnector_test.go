package connector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evalcore/evalcore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Do_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(httpChatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{{Message: struct {
				Content string `json:"content"`
			}{Content: "hello there"}}},
		})
	}))
	defer srv.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{
		ProviderName: "fixture",
		APIKey:       "secret",
		BaseURL:      srv.URL,
	})

	resp, err := transport.Do(t.Context(), Request{ModelID: "fixture-model", Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Positive(t, resp.Usage.TotalTokens, "falls back to tiktoken estimate when usage is absent")
}

func TestHTTPTransport_Do_MapsRateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{ProviderName: "fixture", BaseURL: srv.URL})
	_, err := transport.Do(t.Context(), Request{ModelID: "m"})
	require.Error(t, err)
	assert.Equal(t, types.KindRateLimited, types.GetErrorKind(err))
}

func TestHTTPTransport_Do_MapsServerErrorAsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{ProviderName: "fixture", BaseURL: srv.URL})
	_, err := transport.Do(t.Context(), Request{ModelID: "m"})
	require.Error(t, err)
	assert.Equal(t, types.KindTransport, types.GetErrorKind(err))
}

func TestClient_Invoke_RetriesTransientFailureThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(httpChatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{{Message: struct {
				Content string `json:"content"`
			}{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{ProviderName: "fixture", BaseURL: srv.URL})
	client := NewClient(transport, ClientConfig{
		RetryPolicy: RetryPolicy{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0, Factor: 2},
		RateRPS:     1000,
		RateBurst:   10,
		MetricsNS:   "evalcore_test_retry",
	}, nil)

	resp, err := client.Invoke(t.Context(), Request{ModelID: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestClient_Invoke_CircuitOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{ProviderName: "fixture-breaker", BaseURL: srv.URL})
	client := NewClient(transport, ClientConfig{
		RetryPolicy: RetryPolicy{MaxAttempts: 1, BaseDelay: 0, MaxDelay: 0, Factor: 2},
		Breaker:     BreakerConfig{Window: 60e9, MinCalls: 2, FailureRate: 0.5, OpenDuration: 60e9, HalfOpenMaxCalls: 1},
		RateRPS:     1000,
		RateBurst:   10,
		MetricsNS:   "evalcore_test_breaker",
	}, nil)

	for i := 0; i < 2; i++ {
		_, err := client.Invoke(t.Context(), Request{ModelID: "m"})
		require.Error(t, err)
	}

	_, err := client.Invoke(t.Context(), Request{ModelID: "m"})
	require.Error(t, err)
	assert.Equal(t, types.KindCircuitOpen, types.GetErrorKind(err))
}
