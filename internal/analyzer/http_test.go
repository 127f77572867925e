package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/anomalyvision/internal/models"
)

func sampleRequest() models.AnalysisRequest {
	return models.AnalysisRequest{
		Frames:     []string{"data:image/jpeg;base64,YQ==", "data:image/jpeg;base64,Yg=="},
		Timestamps: []float64{0, 15},
		Duration:   30,
	}
}

func TestHTTPClientAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["frames"], 2)
		assert.Equal(t, []any{0.0, 15.0}, body["timestamps"])
		assert.Equal(t, 30.0, body["duration"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":"Robbery detected","bad_event":"Yes"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", time.Second, nil)
	reply, err := c.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"Robbery detected","bad_event":"Yes"}`, string(reply))
}

func TestHTTPClientNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", 0, nil).Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
}

func TestHTTPClientFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"slow down"}`))
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>gateway timeout</html>`))
		}},
		{"truncated json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"summary":"cut off`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			reply, err := NewHTTPClient(srv.URL, "", time.Second, nil).Analyze(context.Background(), sampleRequest())
			assert.ErrorIs(t, err, ErrAnalysisFailed)
			assert.Nil(t, reply)
		})
	}
}

func TestHTTPClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, "", time.Second, nil).Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

func TestHTTPClientSingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", time.Second, nil).Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Equal(t, 1, calls)
}
