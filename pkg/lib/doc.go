// Package lib 包含基础设施工具库
//
//   - log: 基于 log/slog 的组件日志封装
//
// 与 pkg/ 其他目录的关系：
//
//   - interfaces/: 宿主、命令与总线接口
//   - types/: 公共类型（Address）
//   - protocol/: 内置命令
//   - lib/: 基础设施工具库（本目录）
package lib
