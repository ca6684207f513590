package health

import "sync/atomic"

// Readiness 启动阶段就绪标记（/readyz 使用）
type Readiness struct {
	pollersReady atomic.Bool
	sinksReady   atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetPollersReady(v bool) { r.pollersReady.Store(v) }
func (r *Readiness) SetSinksReady(v bool)   { r.sinksReady.Store(v) }

// Ready 输出通道已打开且轮询已启动
func (r *Readiness) Ready() bool {
	return r.pollersReady.Load() && r.sinksReady.Load()
}
