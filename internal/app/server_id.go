package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateBridgeID 生成网桥实例ID
// 优先使用环境变量BRIDGE_ID，否则生成 bms-bridge-{hostname}-{uuid8}
func GenerateBridgeID() string {
	if id := os.Getenv("BRIDGE_ID"); id != "" {
		return id
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("bms-bridge-%s-%s", hostname, shortUUID)
}
