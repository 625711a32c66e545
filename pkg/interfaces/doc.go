// Package interfaces 定义 vmbus 的公共接口
//
// vmbus 只负责发现与传输，"收到命令后做什么"由宿主运行时决定。
// 本包定义两者之间的边界：
//
//   - host.go    - Host 宿主运行时（成员加入/离开回调）
//   - command.go - Command 自执行命令对象
//   - bus.go     - Bus 通信总线（宿主可调用的发送接口）
package interfaces
