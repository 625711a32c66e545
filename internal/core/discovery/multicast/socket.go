package multicast

import (
	"fmt"
	"net"

	"github.com/wlynxg/anet"
	"golang.org/x/net/ipv4"
)

// OpenSender 创建发送心跳的 UDP 套接字
//
// TTL、回环和出口网卡通过 ipv4 选项设置，设置失败只记录日志。
func OpenSender(cfg Config) (net.PacketConn, error) {
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, err
	}

	p := ipv4.NewPacketConn(c)
	if err := p.SetMulticastTTL(cfg.TTL); err != nil {
		logger.Debug("设置多播 TTL 失败", "ttl", cfg.TTL, "error", err)
	}
	if err := p.SetMulticastLoopback(cfg.Loopback); err != nil {
		logger.Debug("设置多播回环失败", "error", err)
	}
	if cfg.Interface != "" {
		ifi, err := net.InterfaceByName(cfg.Interface)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("interface %q: %w", cfg.Interface, err)
		}
		if err := p.SetMulticastInterface(ifi); err != nil {
			logger.Debug("设置多播出口网卡失败", "interface", cfg.Interface, "error", err)
		}
	}
	return c, nil
}

// OpenListener 创建加入多播组的 UDP 套接字
//
// 未指定网卡时在所有已启用、支持多播的网卡上加入组，单个网卡失败只记录日志。
func OpenListener(cfg Config) (net.PacketConn, error) {
	var ifi *net.Interface
	if cfg.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(cfg.Interface); err != nil {
			return nil, fmt.Errorf("interface %q: %w", cfg.Interface, err)
		}
	}

	c, err := net.ListenMulticastUDP("udp4", ifi, cfg.Group)
	if err != nil {
		return nil, err
	}

	p := ipv4.NewPacketConn(c)
	if ifi == nil {
		joinAll(p, cfg.Group)
	}
	if err := p.SetMulticastLoopback(cfg.Loopback); err != nil {
		logger.Debug("设置多播回环失败", "error", err)
	}
	return c, nil
}

// joinAll 在所有支持多播的网卡上加入组
func joinAll(p *ipv4.PacketConn, group *net.UDPAddr) {
	ifaces, err := anet.Interfaces()
	if err != nil {
		logger.Debug("枚举网卡失败", "error", err)
		return
	}

	joined := 0
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := p.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
			// 默认网卡已由 ListenMulticastUDP 加入
			logger.Debug("加入多播组失败", "interface", ifi.Name, "error", err)
			continue
		}
		joined++
	}
	logger.Debug("已加入多播组", "group", group, "interfaces", joined)
}
