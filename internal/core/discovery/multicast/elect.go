package multicast

import (
	"errors"

	"github.com/dep2p/go-vmbus/pkg/types"
)

// ErrAddressConflict 两个不同节点的地址比较相等
var ErrAddressConflict = errors.New("multicast: address conflict")

// Role 建立连接时本端的角色
type Role int

const (
	// Master 等待对方连接
	Master Role = iota + 1

	// Slave 主动连接对方
	Slave
)

func (r Role) String() string {
	switch r {
	case Master:
		return "master"
	case Slave:
		return "slave"
	default:
		return "unknown"
	}
}

// Elect 决定与 remote 建立连接时本端的角色
//
// 地址较大的一方为 master。Compare 相等时返回 ErrAddressConflict。
func Elect(self, remote types.Address) (Role, error) {
	switch c := self.Compare(remote); {
	case c > 0:
		return Master, nil
	case c < 0:
		return Slave, nil
	default:
		return 0, ErrAddressConflict
	}
}
