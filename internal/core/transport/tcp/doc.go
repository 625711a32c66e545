// Package tcp 实现节点之间的 TCP 连接建立
//
// 两个节点互相听到心跳后，地址较小的一方（slave）调用 Dial 连接
// 地址较大的一方（master），master 的 Acceptor 接受连接。
//
// 连接建立后 slave 先发送握手帧：
//
//	+----------------+---------------------------+
//	| length (4B BE) | Address.Bytes() (<=256B)  |
//	+----------------+---------------------------+
//
// Acceptor 读取握手帧得到 slave 的地址，然后把 (地址, 连接) 交给
// ConnectionSink（即总线）。之后两端对称地建立命令流，见 internal/core/codec。
//
// 每个被接受的连接在独立的协程中完成握手，握手读取受 HandshakeTimeout 限制，
// 一个不发送握手的对端不会阻塞后续连接。
package tcp
