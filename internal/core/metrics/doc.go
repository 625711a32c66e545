// Package metrics 提供 vmbus 的监控指标
//
// Reporter 是总线与发现组件上报事件的接口：
//   - 成员加入/离开与当前成员数
//   - 心跳发送与接收（按处理结果分类）
//   - 命令发送/接收、发送失败
//   - 超时清扫关闭的连接数
//   - 命令流字节数与速率
//
// Collector 把这些事件记录为 Prometheus 指标，同时用 RateMeter
// 维护最近 60 秒的字节速率；禁用指标时使用 NopReporter。
//
// # 快速开始
//
//	reg := prometheus.NewRegistry()
//	c, err := metrics.NewCollector(reg)
//	...
//	c.LogSentCommand("vmbus.Text", 42)
//	stats := c.Totals()
//
// 所有方法都是并发安全的。
package metrics
