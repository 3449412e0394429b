package alert

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_Delivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received Event
		gotAuth  string
		gotCT    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "Authorization: Bearer hook-1", nil)
	wh.Enqueue(Event{Source: "session", Type: "refresh_failure_spike", Count: 5, Threshold: 5})
	wh.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "session", received.Source)
	assert.Equal(t, "refresh_failure_spike", received.Type)
	assert.Equal(t, 5, received.Count)
	assert.Equal(t, "Bearer hook-1", gotAuth)
	assert.Equal(t, "application/json", gotCT)
}

func TestWebhook_RetryOn500(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", nil)
	wh.retryDelay = time.Millisecond
	wh.Enqueue(Event{Type: "x"})
	wh.Close()
	assert.Equal(t, int32(2), attempts.Load())
}

func TestWebhook_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", nil)
	wh.Enqueue(Event{Type: "x"})
	wh.Close()
	assert.Equal(t, int32(1), attempts.Load())
}

func TestWebhook_CloseDrainsQueue(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", nil)
	for range 5 {
		wh.Enqueue(Event{Type: "drain"})
	}
	wh.Close()
	wh.Close()
	require.Equal(t, int32(5), count.Load())
}
