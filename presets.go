package vmbus

import (
	"fmt"
	"time"

	"github.com/dep2p/go-vmbus/config"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设配置常量
// ════════════════════════════════════════════════════════════════════════════

// 预设名称常量
const (
	// PresetNameLAN 局域网预设名称
	PresetNameLAN = "lan"

	// PresetNameLocal 单机预设名称
	PresetNameLocal = "local"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设配置获取
// ════════════════════════════════════════════════════════════════════════════

// GetLANConfig 获取局域网配置
//
// 适用场景：多台机器组成的局域网
// 特点：
//   - 自动选择站点本地地址
//   - 2s 心跳，10s 失联
func GetLANConfig() *config.Config {
	return config.NewConfig()
}

// GetLocalConfig 获取单机配置
//
// 适用场景：同一台机器上运行多个节点（开发、演示）
// 特点：
//   - 公告 127.0.0.1
//   - 接收本机多播
//   - 更短的心跳与失联判定
func GetLocalConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Transport.AdvertiseIP = "127.0.0.1"
	cfg.Discovery.Loopback = true
	cfg.Discovery.HeartbeatInterval = config.Duration(500 * time.Millisecond)
	cfg.Discovery.MaxResponseDelay = config.Duration(3 * time.Second)
	cfg.Discovery.SweepInterval = config.Duration(time.Second)
	return cfg
}

// GetPresetConfig 按名称获取预设配置
func GetPresetConfig(name string) (*config.Config, error) {
	switch name {
	case PresetNameLAN:
		return GetLANConfig(), nil
	case PresetNameLocal:
		return GetLocalConfig(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}
