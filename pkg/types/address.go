package types

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ============================================================================
//                              Address - 节点地址
// ============================================================================

// MaxAddressSize 序列化地址的最大字节数
//
// 地址会被完整放进一个心跳数据报，也作为握手帧发送，
// 超过此上限的地址在构造时即被拒绝。
const MaxAddressSize = 256

// Address 节点地址（IP、端口、网络名）
//
// Address 是不可变值类型：构造时即计算并缓存序列化形式与字符串形式。
// 所有字段都是可比较类型，因此 == 与 Equal 语义一致，可直接作为 map 键。
//
// 编码格式：
//
//	+--------+--------+--------------+--------+--------------+
//	| ipLen  |   ip   | port (int32) | netLen |   network    |
//	| 2B BE  |  UTF-8 |     4B BE    | 2B BE  |    UTF-8     |
//	+--------+--------+--------------+--------+--------------+
type Address struct {
	ip      string
	port    int
	network string

	enc string // 序列化形式缓存
	str string // 字符串形式缓存，用于排序
}

// NewAddress 创建节点地址
//
// 编码超过 MaxAddressSize 时返回 ErrAddressTooLong。
func NewAddress(ip string, port int, network string) (Address, error) {
	if port < 0 || port > 0xFFFF {
		return Address{}, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	if !utf8.ValidString(ip) || !utf8.ValidString(network) {
		return Address{}, fmt.Errorf("%w: not valid UTF-8", ErrInvalidAddress)
	}
	if len(ip) > 0xFFFF || len(network) > 0xFFFF {
		return Address{}, ErrAddressTooLong
	}

	size := 2 + len(ip) + 4 + 2 + len(network)
	if size > MaxAddressSize {
		return Address{}, fmt.Errorf("%w: %d bytes", ErrAddressTooLong, size)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ip)))
	buf = append(buf, ip...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(port))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(network)))
	buf = append(buf, network...)

	return Address{
		ip:      ip,
		port:    port,
		network: network,
		enc:     string(buf),
		str:     net.JoinHostPort(ip, strconv.Itoa(port)) + "/" + network,
	}, nil
}

// AddressFromBytes 从序列化形式解析地址，是 Bytes 的逆操作
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) > MaxAddressSize {
		return Address{}, fmt.Errorf("%w: %d bytes", ErrAddressTooLong, len(b))
	}

	ip, rest, err := readString(b)
	if err != nil {
		return Address{}, err
	}
	if len(rest) < 4 {
		return Address{}, fmt.Errorf("%w: truncated port", ErrInvalidAddress)
	}
	port := binary.BigEndian.Uint32(rest)
	network, rest, err := readString(rest[4:])
	if err != nil {
		return Address{}, err
	}
	if len(rest) != 0 {
		return Address{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidAddress, len(rest))
	}
	if port > 0xFFFF {
		return Address{}, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}

	return NewAddress(ip, int(port), network)
}

// readString 读取 2 字节长度前缀的字符串
func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, fmt.Errorf("%w: truncated length", ErrInvalidAddress)
	}
	n := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if len(b) < n {
		return "", nil, fmt.Errorf("%w: truncated string", ErrInvalidAddress)
	}
	return string(b[:n]), b[n:], nil
}

// Bytes 返回序列化形式（副本）
func (a Address) Bytes() []byte {
	return []byte(a.enc)
}

// IP 返回 IP 字符串
func (a Address) IP() string { return a.ip }

// Port 返回端口
func (a Address) Port() int { return a.port }

// Network 返回网络名
func (a Address) Network() string { return a.network }

// HostPort 返回 "ip:port" 形式，可直接用于拨号
func (a Address) HostPort() string {
	return net.JoinHostPort(a.ip, strconv.Itoa(a.port))
}

// TCPAddr 返回对应的 TCP 地址
func (a Address) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(a.ip), Port: a.port}
}

// IsZero 是否为零值地址
func (a Address) IsZero() bool {
	return a.enc == ""
}

// InSameNetwork 是否属于同一网络（仅比较网络名）
func (a Address) InSameNetwork(other Address) bool {
	return a.network == other.network
}

// Equal 三个字段全部相同
func (a Address) Equal(other Address) bool {
	return a.ip == other.ip && a.port == other.port && a.network == other.network
}

// Compare 基于字符串形式的字典序比较
//
// 只用于两个互相听到对方心跳的节点之间打破对称，决定谁发起 TCP 连接。
func (a Address) Compare(other Address) int {
	return strings.Compare(a.str, other.str)
}

// String 返回 "ip:port/network"
func (a Address) String() string {
	if a.IsZero() {
		return "<nil>"
	}
	return a.str
}
