// Package config 提供 vmbus 的统一配置
//
// 配置分为三部分：
//   - Discovery: 多播心跳发现（组地址、心跳周期、超时、清扫周期）
//   - Transport: TCP 监听、握手与命令帧
//   - Metrics:   Prometheus 指标
//
// 所有时间字段使用 Duration，JSON 中可写作 "2s"、"500ms"。
package config

import (
	"errors"
	"fmt"
)

// DefaultNetworkName 默认网络名
const DefaultNetworkName = "default"

// Config vmbus 配置
type Config struct {
	// NetworkName 网络名
	//
	// 只有网络名相同的节点才会互相连接，不同网络的心跳会被忽略。
	NetworkName string `json:"network_name"`

	// Discovery 发现配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Transport 传输配置
	Transport TransportConfig `json:"transport"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		NetworkName: DefaultNetworkName,
		Discovery:   DefaultDiscoveryConfig(),
		Transport:   DefaultTransportConfig(),
		Metrics:     DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.NetworkName == "" {
		return fmt.Errorf("%w: network name is empty", ErrInvalidConfig)
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// Clone 返回配置的深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// WithNetworkName 设置网络名
func (c *Config) WithNetworkName(name string) *Config {
	c.NetworkName = name
	return c
}

// ErrInvalidConfig 无效配置
var ErrInvalidConfig = errors.New("invalid config")
