package interfaces

import "github.com/dep2p/go-vmbus/pkg/types"

// Command 在连接上传输的自执行命令
//
// 总线不理解命令内容：发送时调用 MarshalBinary，接收时按 CommandType
// 在注册表中找到工厂、UnmarshalBinary，然后调用 ExecuteUponReceipt。
type Command interface {
	// CommandType 命令类型名，在注册表中唯一
	CommandType() string

	// MarshalBinary 序列化命令负载
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary 反序列化命令负载
	UnmarshalBinary(data []byte) error

	// ExecuteUponReceipt 在接收端执行
	//
	// sender 是发送方地址。ExecuteUponReceipt 运行在该连接的读取协程上，
	// 阻塞会暂停这条连接上后续命令的处理。
	ExecuteUponReceipt(host Host, sender types.Address)
}

// CommandFactory 创建命令零值，供解码使用
type CommandFactory func() Command
