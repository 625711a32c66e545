package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// 环境变量名（均使用 VMBUS_ 前缀）
const (
	EnvPrefix            = "VMBUS_"
	EnvNetworkName       = "NETWORK"
	EnvListenPort        = "LISTEN_PORT"
	EnvAdvertiseIP       = "ADVERTISE_IP"
	EnvMulticastGroup    = "GROUP"
	EnvHeartbeatInterval = "HEARTBEAT_INTERVAL"
	EnvMetricsAddr       = "METRICS_ADDR"
)

// LoadFile 从 JSON 文件加载配置
//
// 文件中未出现的字段保留默认值。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv 应用环境变量覆盖
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 无法解析的值会返回错误，而不是被静默忽略。
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvPrefix + EnvNetworkName); v != "" {
		cfg.NetworkName = v
	}

	if v := os.Getenv(EnvPrefix + EnvListenPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvListenPort, err)
		}
		cfg.Transport.ListenPort = port
	}

	if v := os.Getenv(EnvPrefix + EnvAdvertiseIP); v != "" {
		cfg.Transport.AdvertiseIP = v
	}

	if v := os.Getenv(EnvPrefix + EnvMulticastGroup); v != "" {
		cfg.Discovery.Group = v
	}

	if v := os.Getenv(EnvPrefix + EnvHeartbeatInterval); v != "" {
		if err := cfg.Discovery.HeartbeatInterval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvHeartbeatInterval, err)
		}
	}

	if v := os.Getenv(EnvPrefix + EnvMetricsAddr); v != "" {
		cfg.Metrics.ListenAddr = v
	}

	return nil
}
