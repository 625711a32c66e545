package config

import (
	"fmt"
	"net"
	"time"
)

// 发现相关默认值
const (
	// DefaultMulticastGroup 心跳多播组
	DefaultMulticastGroup = "239.255.77.77:4446"

	// DefaultHeartbeatInterval 心跳周期
	DefaultHeartbeatInterval = 2 * time.Second

	// DefaultMaxResponseDelay 超过此时长未收到心跳的连接会被关闭
	DefaultMaxResponseDelay = 10 * time.Second

	// DefaultSweepInterval 超时清扫周期
	DefaultSweepInterval = 4 * time.Second

	// DefaultMulticastTTL 多播 TTL（1 = 不出本网段）
	DefaultMulticastTTL = 1
)

// DiscoveryConfig 多播心跳发现配置
type DiscoveryConfig struct {
	// Group 多播组地址 "ip:port"
	Group string `json:"group"`

	// Interface 加入多播组的网卡名，为空时加入所有支持多播的网卡
	Interface string `json:"interface,omitempty"`

	// HeartbeatInterval 心跳广播周期
	HeartbeatInterval Duration `json:"heartbeat_interval"`

	// MaxResponseDelay 失联判定时长
	MaxResponseDelay Duration `json:"max_response_delay"`

	// SweepInterval 超时清扫周期，独立于心跳周期
	SweepInterval Duration `json:"sweep_interval"`

	// TTL 多播 TTL
	TTL int `json:"ttl"`

	// Loopback 是否接收本机发出的多播（同机多进程需要开启）
	Loopback bool `json:"loopback"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Group:             DefaultMulticastGroup,
		HeartbeatInterval: Duration(DefaultHeartbeatInterval),
		MaxResponseDelay:  Duration(DefaultMaxResponseDelay),
		SweepInterval:     Duration(DefaultSweepInterval),
		TTL:               DefaultMulticastTTL,
		Loopback:          true,
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	addr, err := net.ResolveUDPAddr("udp4", c.Group)
	if err != nil {
		return fmt.Errorf("%w: discovery group %q: %v", ErrInvalidConfig, c.Group, err)
	}
	if addr.Port == 0 {
		return fmt.Errorf("%w: discovery group %q has no port", ErrInvalidConfig, c.Group)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrInvalidConfig)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", ErrInvalidConfig)
	}
	if c.MaxResponseDelay <= c.HeartbeatInterval {
		return fmt.Errorf("%w: max response delay (%s) must exceed heartbeat interval (%s)",
			ErrInvalidConfig, c.MaxResponseDelay, c.HeartbeatInterval)
	}
	if c.TTL < 0 || c.TTL > 255 {
		return fmt.Errorf("%w: ttl %d out of range", ErrInvalidConfig, c.TTL)
	}
	return nil
}

// GroupAddr 解析多播组地址
func (c DiscoveryConfig) GroupAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", c.Group)
}
