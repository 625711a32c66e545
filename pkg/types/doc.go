// Package types 定义 vmbus 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 vmbus 内部包。
//
// # 文件组织
//
//   - address.go - Address 节点地址及其编码
//   - errors.go  - 公共错误定义
//
// # 地址排序
//
// Address.Compare 只用于打破对称：两个节点互相听到心跳时，
// 较大的一方为 master，较小的一方为 slave 并主动发起 TCP 连接。
// 这个角色只在建立连接的瞬间有意义，不是长期的层级关系。
package types
