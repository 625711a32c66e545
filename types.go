package vmbus

import (
	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// Address 节点地址（IP、端口、网络名）
type Address = types.Address

// Command 自执行命令
type Command = interfaces.Command

// CommandFactory 命令工厂
type CommandFactory = interfaces.CommandFactory

// Host 宿主回调
type Host = interfaces.Host

// HostFuncs 以函数形式实现 Host
type HostFuncs = interfaces.HostFuncs

// Config 统一配置
type Config = config.Config

// Stats 命令流字节统计快照
type Stats = metrics.Stats
