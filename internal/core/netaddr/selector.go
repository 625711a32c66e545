// Package netaddr 选择本节点对外公告的 IP 地址
//
// 默认策略是"第一个已启用、非回环、非虚拟网桥的站点本地 IPv4 地址"。
// 这个启发式在多网卡或纯 IPv6 主机上并不可靠，因此做成可替换的 Selector：
// 配置了 AdvertiseIP 时直接使用它，测试中可以注入 StaticSelector。
package netaddr

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/wlynxg/anet"
	"go.uber.org/multierr"

	"github.com/dep2p/go-vmbus/pkg/lib/log"
)

var logger = log.Logger("core/netaddr")

// ErrNoAddress 没有可用地址
var ErrNoAddress = errors.New("netaddr: no suitable local address")

// Selector 本地公告地址选择策略
type Selector interface {
	Select() (net.IP, error)
}

// SelectorFunc 函数形式的 Selector
type SelectorFunc func() (net.IP, error)

// Select 实现 Selector
func (f SelectorFunc) Select() (net.IP, error) { return f() }

// ============================================================================
//                              StaticSelector
// ============================================================================

// StaticSelector 固定地址
type StaticSelector struct {
	IP net.IP
}

// Static 解析字符串并返回固定地址策略
func Static(ip string) (StaticSelector, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return StaticSelector{}, fmt.Errorf("netaddr: invalid ip %q", ip)
	}
	return StaticSelector{IP: parsed}, nil
}

// Select 实现 Selector
func (s StaticSelector) Select() (net.IP, error) {
	if s.IP == nil {
		return nil, ErrNoAddress
	}
	return s.IP, nil
}

// ============================================================================
//                              SiteLocalSelector
// ============================================================================

// SiteLocalSelector 选择第一个站点本地 IPv4 地址
//
// 网卡枚举通过 anet 完成，在 Android 上 net.Interfaces 受限时仍然可用。
type SiteLocalSelector struct {
	// Interfaces 枚举网卡，默认 anet.Interfaces
	Interfaces func() ([]net.Interface, error)

	// Addrs 枚举网卡地址，默认 anet.InterfaceAddrsByInterface
	Addrs func(*net.Interface) ([]net.Addr, error)
}

// Select 实现 Selector
func (s SiteLocalSelector) Select() (net.IP, error) {
	ifacesFn := s.Interfaces
	if ifacesFn == nil {
		ifacesFn = anet.Interfaces
	}
	addrsFn := s.Addrs
	if addrsFn == nil {
		addrsFn = anet.InterfaceAddrsByInterface
	}

	ifaces, err := ifacesFn()
	if err != nil {
		return nil, fmt.Errorf("netaddr: list interfaces: %w", err)
	}

	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if IsVirtualBridgeInterface(iface.Name) {
			logger.Debug("跳过虚拟网桥接口", "interface", iface.Name)
			continue
		}

		addrs, err := addrsFn(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip := ipOf(addr); IsSiteLocalIPv4(ip) {
				return ip.To4(), nil
			}
		}
	}
	return nil, ErrNoAddress
}

// ============================================================================
//                              LoopbackSelector
// ============================================================================

// LoopbackSelector 返回 127.0.0.1，只适合单机
type LoopbackSelector struct{}

// Select 实现 Selector
func (LoopbackSelector) Select() (net.IP, error) {
	return net.IPv4(127, 0, 0, 1).To4(), nil
}

// ============================================================================
//                              FallbackSelector
// ============================================================================

// FallbackSelector 依次尝试多个策略，返回第一个成功的结果
type FallbackSelector []Selector

// Select 实现 Selector
func (f FallbackSelector) Select() (net.IP, error) {
	var errs error
	for i, s := range f {
		ip, err := s.Select()
		if err == nil {
			if i > 0 {
				logger.Warn("首选地址策略不可用，使用后备地址", "ip", ip, "errors", errs)
			}
			return ip, nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return nil, ErrNoAddress
	}
	return nil, errs
}

// Default 返回默认策略
//
// advertiseIP 非空时固定使用它；否则站点本地地址优先，回环地址兜底。
func Default(advertiseIP string) (Selector, error) {
	if advertiseIP != "" {
		s, err := Static(advertiseIP)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return FallbackSelector{SiteLocalSelector{}, LoopbackSelector{}}, nil
}

// ============================================================================
//                              辅助函数
// ============================================================================

// IsSiteLocalIPv4 是否为站点本地（RFC 1918）IPv4 地址
func IsSiteLocalIPv4(ip net.IP) bool {
	if ip == nil || ip.To4() == nil {
		return false
	}
	return ip.IsPrivate()
}

// IsVirtualBridgeInterface 检查接口是否为容器/虚拟机网桥
//
// 这些接口的地址通常只对本机容器可达，对局域网中的其他节点不可达。
func IsVirtualBridgeInterface(name string) bool {
	if name == "docker0" || name == "docker_gwbridge" {
		return true
	}
	for _, prefix := range []string{"br-", "veth", "cni", "flannel", "calico", "weave", "virbr", "lxcbr", "lxdbr"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func ipOf(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
