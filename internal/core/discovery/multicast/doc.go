// Package multicast 实现基于 UDP 多播心跳的节点发现
//
// 每个节点周期性地把自己的地址（types.Address.Bytes）作为一个数据报
// 发送到多播组（Broadcaster），同时监听多播组（Listener）。
//
// 收到心跳时：
//  1. 无法解码的数据报丢弃
//  2. 其他网络的心跳丢弃（每个节点只记录一次日志）
//  3. 自己的心跳丢弃
//  4. 已连接的节点刷新 lastSeen
//  5. 新节点按 Elect 选出 master/slave：本端为 slave 时主动 TCP 连接对方，
//     本端为 master 时等待对方连接
//
// 套接字出错不会终止循环：套接字被关闭，稍后按速率限制重建。
package multicast
