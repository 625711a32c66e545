// Package vmbus 提供局域网内虚拟机进程之间的命令总线
//
// 节点通过 UDP 多播心跳互相发现，发现后在每对节点之间建立一条 TCP 连接，
// 并在连接上传输自执行命令（interfaces.Command）。没有中心协调者：
// 每对节点按地址比较选出主从，由从方拨号。
//
// 快速开始：
//
//	node, err := vmbus.Start(ctx,
//	    vmbus.WithNetworkName("demo"),
//	    vmbus.WithHost(myHost),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	node.BroadcastText("hello")
//
// 宿主（Host）在成员加入和离开时收到回调；实现 commands.TextReceiver、
// commands.PongReceiver 的宿主还会收到内置命令的结果。
//
// 组件通过 go.uber.org/fx 组装：
//   - config:  统一配置
//   - netaddr: 本地地址选择
//   - metrics: Prometheus 指标
//   - bus:     连接表、发现与命令收发
package vmbus
