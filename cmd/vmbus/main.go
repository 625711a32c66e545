// Package main 提供 vmbus 命令行入口
//
// 加入一个 vmbus 网络，打印成员加入与离开，把标准输入的每一行作为
// Text 广播给所有成员，并定期 Ping 成员报告往返时延。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-vmbus"
	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/pkg/lib/log"
)

var logger = log.Logger("vmbus/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 运行时参数
	// ─────────────────────────────────────────────────────────────────────
	configFile  = flag.String("config", "", "配置文件路径（JSON）")
	preset      = flag.String("preset", vmbus.PresetNameLAN, "预设配置 (lan/local)")
	network     = flag.String("network", "", "网络名")
	port        = flag.Int("port", 0, "监听端口（0 = 随机端口）")
	advertiseIP = flag.String("advertise-ip", "", "对外公告的 IP")
	group       = flag.String("group", "", "心跳多播组 ip:port")
	iface       = flag.String("iface", "", "加入多播组的网卡")
	metricsAddr = flag.String("metrics", "", "/metrics 监听地址，例如 :9100")
	pingEvery   = flag.Duration("ping", 10*time.Second, "Ping 周期（0 = 关闭）")

	// ─────────────────────────────────────────────────────────────────────
	// 日志参数
	// ─────────────────────────────────────────────────────────────────────
	logFile  = flag.String("log", "", "日志文件路径")
	logLevel = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(vmbus.VersionInfo())
		return nil
	}

	if *logLevel != "" {
		level, err := log.ParseLevel(*logLevel)
		if err != nil {
			return err
		}
		log.SetOutputWithLevel(os.Stderr, level)
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("📦 %s\n", vmbus.VersionInfo())
	logger.Info("启动 vmbus 节点", "version", vmbus.Version, "commit", vmbus.GitCommit, "buildDate", vmbus.BuildDate)

	term := newConsole(os.Stdout)
	node, err := vmbus.Start(ctx, append(opts, vmbus.WithHost(term))...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	cfg := node.Config()
	fmt.Printf("节点已启动: %s (group %s)\n", node.Address(), cfg.Discovery.Group)
	fmt.Println("输入文本广播给所有成员，/help 查看命令，Ctrl+C 退出")

	if cfg.Metrics.ListenAddr != "" {
		srv := serveMetrics(cfg.Metrics.ListenAddr, node)
		defer func() { _ = srv.Close() }()
	}

	if *pingEvery > 0 {
		go pingLoop(ctx, node, *pingEvery)
	}

	lines := make(chan string)
	go readLines(bufio.NewScanner(os.Stdin), lines)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-signals:
			fmt.Println("\n正在关闭节点...")
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Println("正在关闭节点...")
				return nil
			}
			if term.handleLine(node, line) {
				return nil
			}
		}
	}
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（VMBUS_* 前缀）
//  3. 配置文件
//  4. 预设默认值
func buildOptions() ([]vmbus.Option, error) {
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	} else {
		var err error
		cfg, err = vmbus.GetPresetConfig(*preset)
		if err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	opts := []vmbus.Option{vmbus.WithConfig(cfg)}

	if *network != "" {
		opts = append(opts, vmbus.WithNetworkName(*network))
	}
	if isFlagSet("port") {
		opts = append(opts, vmbus.WithListenPort(*port))
	}
	if *advertiseIP != "" {
		opts = append(opts, vmbus.WithAdvertiseIP(*advertiseIP))
	}
	if *group != "" {
		opts = append(opts, vmbus.WithMulticastGroup(*group))
	}
	if *iface != "" {
		opts = append(opts, vmbus.WithMulticastInterface(*iface))
	}
	if *logFile != "" {
		opts = append(opts, vmbus.WithLogFile(*logFile))
	}

	return opts, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// serveMetrics 在后台暴露 /metrics
func serveMetrics(addr string, node *vmbus.Node) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(node.Gatherer(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "addr", addr, "error", err)
		}
	}()
	fmt.Printf("指标: http://%s/metrics\n", addr)
	return srv
}

// pingLoop 定期 Ping 所有成员
func pingLoop(ctx context.Context, node *vmbus.Node, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := node.PingAll(); err != nil {
				logger.Debug("Ping 失败", "error", err)
				return
			}
		}
	}
}

// readLines 把标准输入逐行送入 lines，输入结束时关闭 lines
func readLines(scanner *bufio.Scanner, lines chan<- string) {
	defer close(lines)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
