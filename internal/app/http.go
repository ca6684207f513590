package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器；http.addr 为空时返回 nil
func NewHTTPServer(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, readyFn func() bool, routes ...httpserver.RouteRegistrar) *httpserver.Server {
	if cfg.Addr == "" {
		return nil
	}
	return httpserver.New(cfg, metricsPath, metricsHandler, readyFn, routes...)
}
