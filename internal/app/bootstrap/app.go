package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/api"
	"github.com/taoyao-code/bms-bridge/internal/api/middleware"
	"github.com/taoyao-code/bms-bridge/internal/app"
	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/health"
	"github.com/taoyao-code/bms-bridge/internal/httpserver"
	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Run 统一启动流程，阻塞直到收到 SIGINT/SIGTERM
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridgeID := app.GenerateBridgeID()
	log.Info("starting bms bridge",
		zap.String("bridge_id", bridgeID),
		zap.Int("devices", len(cfg.Devices)))
	if len(cfg.Devices) == 0 {
		log.Warn("no devices configured")
	}

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	ready := health.New()

	// ========== 阶段2: Redis（可选）==========
	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	store := app.NewStateStore(redisClient, bridgeID, cfg.Redis)
	registry := app.NewDeviceRegistry(cfg.Devices, store, log)

	// ========== 阶段3: 输出通道 ==========
	sinks, err := app.NewSinks(cfg.Sinks, redisClient, bridgeID, appm, log)
	if err != nil {
		log.Error("sink initialization failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("close sinks failed", zap.Error(err))
		}
	}()
	ready.SetSinksReady(true)

	// ========== 阶段4: HTTP 服务（非阻塞）==========
	healthAgg := app.NewHealthAggregator(registry, sinks.Queue, sinks.Breakers, redisClient, 2*cfg.Link.ConnectTimeout)
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		metricsHandler = metrics.Handler(reg)
	}
	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready, func(r gin.IRouter) {
		handler := api.NewDeviceHandler(registry, app.SensorCounts(cfg.Devices), log)
		api.RegisterDeviceRoutes(r, handler, middleware.AuthConfig{
			APIKeys: cfg.HTTP.Auth.APIKeys,
			Enabled: cfg.HTTP.Auth.Enabled,
		}, log)
		health.RegisterHTTPRoutes(r, healthAgg)
	})
	if httpSrv != nil {
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
		}()
		log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
	}

	// ========== 阶段5: BLE 适配器与轮询 ==========
	tr, err := app.NewBLETransport(cfg.Link, log)
	if err != nil {
		log.Error("ble adapter initialization failed", zap.Error(err))
		shutdownHTTP(httpSrv, log)
		return err
	}
	defer func() { _ = tr.Close() }()

	sup, err := app.NewSupervisor(cfg, tr, sinks.Publisher, registry, appm, log)
	if err != nil {
		shutdownHTTP(httpSrv, log)
		return err
	}
	sup.Start(ctx)
	go app.NewOnlineSyncer(registry, appm, 0, log).Start(ctx)
	ready.SetPollersReady(true)
	log.Info("all services ready")

	// ========== 阶段6: 等待关闭信号 ==========
	<-ctx.Done()
	log.Info("received shutdown signal, gracefully shutting down...")

	// 驱动退出时会退订并断开链路
	sup.Wait()
	log.Info("pollers stopped")
	cleanupState(store, log)

	shutdownHTTP(httpSrv, log)
	log.Info("shutdown complete")
	return nil
}

// cleanupState 删除本实例在 Redis 中的设备状态镜像
func cleanupState(store session.StateStore, log *zap.Logger) {
	rs, ok := store.(*session.RedisStore)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rs.Cleanup(ctx); err != nil {
		log.Warn("cleanup device state failed", zap.Error(err))
	}
}

func shutdownHTTP(srv *httpserver.Server, log *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
}
