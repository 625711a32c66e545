package config

import (
	"fmt"
	"net"
	"time"
)

// 传输相关默认值
const (
	// DefaultHandshakeTimeout 握手与流头读取超时
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultDialTimeout 拨号超时
	DefaultDialTimeout = 5 * time.Second

	// DefaultMaxFrameSize 单个命令帧上限
	DefaultMaxFrameSize = 16 << 20

	// DefaultFanOut 多播发送的并发上限
	DefaultFanOut = 16
)

// TransportConfig TCP 传输配置
type TransportConfig struct {
	// ListenPort 监听端口，0 表示随机端口
	ListenPort int `json:"listen_port"`

	// AdvertiseIP 对外公告的 IP，为空时自动选择站点本地地址
	AdvertiseIP string `json:"advertise_ip,omitempty"`

	// HandshakeTimeout 握手与流头读取超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// MaxFrameSize 单个命令帧的最大字节数
	MaxFrameSize int `json:"max_frame_size"`

	// FanOut 多播发送的并发上限
	FanOut int `json:"fan_out"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: Duration(DefaultHandshakeTimeout),
		DialTimeout:      Duration(DefaultDialTimeout),
		MaxFrameSize:     DefaultMaxFrameSize,
		FanOut:           DefaultFanOut,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 0xFFFF {
		return fmt.Errorf("%w: listen port %d out of range", ErrInvalidConfig, c.ListenPort)
	}
	if c.AdvertiseIP != "" && net.ParseIP(c.AdvertiseIP) == nil {
		return fmt.Errorf("%w: advertise ip %q", ErrInvalidConfig, c.AdvertiseIP)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", ErrInvalidConfig)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: max frame size must be positive", ErrInvalidConfig)
	}
	if c.FanOut <= 0 {
		return fmt.Errorf("%w: fan out must be positive", ErrInvalidConfig)
	}
	return nil
}
