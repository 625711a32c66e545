package config

import (
	"fmt"
	"net"
)

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 是否收集指标
	Enabled bool `json:"enabled"`

	// ListenAddr /metrics HTTP 监听地址，为空时不暴露（仅 CLI 使用）
	ListenAddr string `json:"listen_addr,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: metrics listen addr %q: %v", ErrInvalidConfig, c.ListenAddr, err)
	}
	return nil
}
