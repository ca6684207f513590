package poller

// State 轮询驱动状态
type State int32

const (
	// StateDisconnected 无链路；等待退避或即将连接
	StateDisconnected State = iota
	// StateConnecting 正在发现并连接设备
	StateConnecting
	// StateConnected 链路已建立，尚未开始本轮轮询
	StateConnected
	// StatePolling 已订阅通知并发出轮询命令，处于采集窗口
	StatePolling
	// StateIdle 本轮结束，等待下一个刷新周期
	StateIdle
)

// String 状态名称（同时作为注册表与接口中的状态值）
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePolling:
		return "polling"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// linked 该状态下链路是否已建立
func (s State) linked() bool {
	return s == StateConnected || s == StatePolling || s == StateIdle
}
