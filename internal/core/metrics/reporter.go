package metrics

// 心跳接收的处理结果
const (
	HeartbeatInvalid  = "invalid"  // 无法解码
	HeartbeatForeign  = "foreign"  // 其他网络
	HeartbeatSelf     = "self"     // 自己的心跳
	HeartbeatKnown    = "known"    // 已连接节点，刷新 lastSeen
	HeartbeatDial     = "dial"     // 新节点，本端为 slave，发起连接
	HeartbeatWait     = "wait"     // 新节点，本端为 master，等待对方连接
	HeartbeatConflict = "conflict" // 地址冲突
)

// Reporter 记录总线与发现组件的事件
type Reporter interface {
	// LogMemberJoined 记录成员加入，members 为加入后的成员数
	LogMemberJoined(members int)

	// LogMemberLeft 记录成员离开，members 为离开后的成员数
	LogMemberLeft(members int)

	// LogHeartbeatSent 记录一次心跳发送，err 非空表示失败
	LogHeartbeatSent(err error)

	// LogHeartbeatReceived 记录一次心跳接收及其处理结果
	LogHeartbeatReceived(result string)

	// LogSentCommand 记录命令发送及帧字节数
	LogSentCommand(cmdType string, size int)

	// LogRecvCommand 记录命令接收
	LogRecvCommand(cmdType string)

	// LogRecvBytes 记录命令流读取的字节数
	LogRecvBytes(size int)

	// LogSendFailure 记录发送失败，op 为发送方式
	LogSendFailure(op string)

	// LogSweepClosed 记录一次超时清扫关闭的连接数
	LogSweepClosed(n int)

	// Totals 返回字节统计
	Totals() Stats
}

// 确保实现 Reporter 接口
var (
	_ Reporter = (*Collector)(nil)
	_ Reporter = NopReporter{}
)

// NopReporter 不记录任何指标
type NopReporter struct{}

func (NopReporter) LogMemberJoined(int) {}
func (NopReporter) LogMemberLeft(int) {}
func (NopReporter) LogHeartbeatSent(error) {}
func (NopReporter) LogHeartbeatReceived(string) {}
func (NopReporter) LogSentCommand(string, int) {}
func (NopReporter) LogRecvCommand(string) {}
func (NopReporter) LogRecvBytes(int) {}
func (NopReporter) LogSendFailure(string) {}
func (NopReporter) LogSweepClosed(int) {}
func (NopReporter) Totals() Stats { return Stats{} }
