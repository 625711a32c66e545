// Package bus 实现 vmbus 通信总线
//
// Bus 维护一张 地址 → 连接 的连接表，并把多播发现、TCP 接受器、
// 命令处理协程和超时清扫组合在一起。
//
// # 状态
//
// Bus 只有 Disconnected 和 Connected 两个状态。Connect/Disconnect 都是幂等的，
// 二者由生命周期锁串行化；连接表由另一把锁保护。
//
// # 连接表
//
//   - AddConnection: 同一地址已有连接时静默替换旧连接，不产生新的加入事件
//   - RemoveConnection: 只有当前表项正是该连接时才删除（旧连接的处理协程
//     退出时不会误删新连接）
//   - 只有命令处理协程会调用 RemoveConnection；其他路径（发送失败、超时清扫、
//     Disconnect）只关闭连接，由处理协程在读失败后完成注销
//
// # 事件
//
// MemberJoined/MemberLeft 在持有连接表锁时按变更顺序入队，由单独的分发协程投递，
// 因此宿主在回调中可以再调用总线。
//
// # 发送
//
// 异步发送不返回错误，失败时关闭连接并记录日志；同步发送返回 *NetworkError。
// 每条连接的写入由写锁串行化，同一对端的发送顺序与调用顺序一致。
package bus
