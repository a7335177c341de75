package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

func newTestClient() *Client {
	return NewClient(ClientOptions{
		Timeout:         2 * time.Second,
		RequestsPerSec:  100,
		MaxRetryTimeout: 300 * time.Millisecond,
		InitialInterval: 5 * time.Millisecond,
	})
}

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ping", body["msg"])

		w.Write([]byte(`{"reply": "pong"}`))
	}))
	defer srv.Close()

	var out struct {
		Reply string `json:"reply"`
	}
	err := newTestClient().PostJSON(context.Background(), srv.URL, map[string]string{"X-Api-Key": "secret"},
		map[string]string{"msg": "ping"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "pong", out.Reply)
}

func TestPostJSON_AuthFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid key"}`))
	}))
	defer srv.Close()

	err := newTestClient().PostJSON(context.Background(), srv.URL, nil, map[string]string{}, nil)

	require.Error(t, err)
	assert.Equal(t, models.KindAuth, models.KindOf(err))
	assert.Contains(t, err.Error(), "invalid key")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestPostJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := newTestClient().PostJSON(context.Background(), srv.URL, nil, map[string]string{}, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPostJSON_RateLimitedAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestClient().PostJSON(context.Background(), srv.URL, nil, map[string]string{}, nil)

	require.Error(t, err)
	assert.Equal(t, models.KindRateLimited, models.KindOf(err))
}

func TestPostJSON_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestClient().PostJSON(context.Background(), url, nil, map[string]string{}, nil)

	require.Error(t, err)
	assert.Equal(t, models.KindNetwork, models.KindOf(err))
}

func TestPostJSON_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newTestClient().PostJSON(context.Background(), srv.URL, nil, map[string]string{}, &out)

	require.Error(t, err)
	assert.Equal(t, models.KindMalformedResponse, models.KindOf(err))
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, models.KindAuth, ClassifyStatus(401))
	assert.Equal(t, models.KindAuth, ClassifyStatus(403))
	assert.Equal(t, models.KindRateLimited, ClassifyStatus(429))
	assert.Equal(t, models.KindNetwork, ClassifyStatus(500))
	assert.Equal(t, models.KindNetwork, ClassifyStatus(404))
}
