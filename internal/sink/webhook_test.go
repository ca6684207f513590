package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignHMAC(t *testing.T) {
	got := SignHMAC("secret", "POST\n/path\n1700000000\nnonce\nbodyhash")
	assert.Len(t, got, 64)
	assert.True(t, VerifyHMAC("secret", "POST\n/path\n1700000000\nnonce\nbodyhash", got))
	assert.False(t, VerifyHMAC("other", "POST\n/path\n1700000000\nnonce\nbodyhash", got))
}

func TestCanonical(t *testing.T) {
	c := Canonical("post", "/hook", 1700000000, "n1", []byte(""))
	assert.Equal(t, "POST\n/hook\n1700000000\nn1\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", c)
}

func TestPusher_SendJSON_SignedRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		tsHeader, _ := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		canonical := Canonical(r.Method, r.URL.Path, tsHeader, r.Header.Get("X-Nonce"), body)
		if r.Header.Get("X-Api-Key") != "key" || !VerifyHMAC("secret", canonical, r.Header.Get("X-Signature")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	code, body, err := p.SendJSON(context.Background(), ts.URL+"/hook", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestPusher_RetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	nonces := make(chan string, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonces <- r.Header.Get("X-Nonce")
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	p.Backoff = []time.Duration{time.Millisecond}
	code, _, err := p.SendJSON(context.Background(), ts.URL, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int32(3), calls.Load())

	close(nonces)
	seen := map[string]bool{}
	for n := range nonces {
		seen[n] = true
	}
	assert.Len(t, seen, 3, "every attempt is signed with a fresh nonce")
}

func TestPusher_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	code, _, err := p.SendJSON(context.Background(), ts.URL, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookSink_Publish(t *testing.T) {
	events := make(chan Event, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events <- ev
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	s, err := NewWebhookSink(WebhookConfig{URL: ts.URL + "/bms", APIKey: "k", Secret: "s", Source: "bridge-1"}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Publish(context.Background(), "vestwoods_bms/AA_BB/soc", []byte("87.5")))
	ev := <-events
	assert.Equal(t, "telemetry", ev.Event)
	assert.Equal(t, "bridge-1", ev.Source)
	assert.Equal(t, "AA_BB", ev.Device)
	assert.Equal(t, "soc", ev.Key)
	assert.JSONEq(t, "87.5", string(ev.Value))
	assert.Equal(t, "webhook", s.Name())
}

func TestWebhookSink_BreakerOpensOnFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	s, err := NewWebhookSink(WebhookConfig{URL: ts.URL, BreakerThreshold: 2, BreakerCooldown: time.Hour}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.Error(t, s.Publish(context.Background(), "p/d/k", []byte("1")))
	}
	assert.Equal(t, BreakerOpen, s.Breaker().State())

	err = s.Publish(context.Background(), "p/d/k", []byte("1"))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewWebhookSink_InvalidURL(t *testing.T) {
	_, err := NewWebhookSink(WebhookConfig{URL: "not a url"}, nil)
	assert.Error(t, err)
}
