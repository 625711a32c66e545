// Package codec 实现连接上的命令流编解码
//
// # 流头
//
// 每个方向的字节流以 4 字节流头开始（"VMB" + 版本号）。
// 建立连接时双方都必须先构造 Encoder（写出并刷新流头），
// 再构造 Decoder（读取对端流头）；顺序反过来时两端会互相等待对方的流头而死锁。
//
// # 命令帧
//
// 流头之后是无限长的命令帧序列。每帧是一个 varint 长度前缀的
// google.protobuf.Any（protodelim 格式）：
//
//	type_url = Command.CommandType()
//	value    = Command.MarshalBinary()
//
// 接收端按 type_url 在 Registry 中查找工厂，构造零值后 UnmarshalBinary。
//
// # 并发
//
// Encoder 与 Decoder 都不是并发安全的：总线为每条连接的写入加锁，
// 读取只在该连接的处理协程中进行。
package codec
