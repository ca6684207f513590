package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	appmetrics "github.com/taoyao-code/bms-bridge/internal/metrics"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	appmetrics.NewAppMetrics(reg)
	srv := New(cfg, "/metrics", appmetrics.Handler(reg), func() bool { return true })

	if rr := get(srv.Handler(), "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("/healthz code=%d", rr.Code)
	}
	if rr := get(srv.Handler(), "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("/readyz code=%d", rr.Code)
	}
	rr := get(srv.Handler(), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics code=%d", rr.Code)
	}
}

func TestReadyzNotReady(t *testing.T) {
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	srv := New(cfg, "/metrics", nil, func() bool { return false })

	if rr := get(srv.Handler(), "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz not-ready code=%d", rr.Code)
	}
	if rr := get(srv.Handler(), "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("/metrics without handler code=%d", rr.Code)
	}
}

func TestRoutesAndPprof(t *testing.T) {
	cfg := cfgpkg.HTTPConfig{Addr: ":0", Pprof: cfgpkg.HTTPPprof{Enable: true, Prefix: "/debug/pprof/"}}
	srv := New(cfg, "", nil, nil, func(r gin.IRouter) {
		r.GET("/api/v1/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	})

	rr := get(srv.Handler(), "/api/v1/ping")
	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Fatalf("/api/v1/ping code=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr := get(srv.Handler(), "/debug/pprof/goroutine"); rr.Code != http.StatusOK {
		t.Fatalf("pprof goroutine code=%d", rr.Code)
	}
	if rr := get(srv.Handler(), "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("nil readyFn should be ready, code=%d", rr.Code)
	}
}
