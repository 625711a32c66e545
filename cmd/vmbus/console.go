package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dep2p/go-vmbus"
)

// ============================================================================
//                              console
// ============================================================================

// console 把总线事件打印到终端，并解析用户输入
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// MemberJoined 实现 vmbus.Host
func (c *console) MemberJoined(addr vmbus.Address) {
	c.printf("+ %s 加入\n", addr)
}

// MemberLeft 实现 vmbus.Host
func (c *console) MemberLeft(addr vmbus.Address) {
	c.printf("- %s 离开\n", addr)
}

// ReceiveText 实现 commands.TextReceiver
func (c *console) ReceiveText(sender vmbus.Address, body string) {
	c.printf("[%s] %s\n", sender.HostPort(), body)
}

// ReceivePong 实现 commands.PongReceiver
func (c *console) ReceivePong(sender vmbus.Address, rtt time.Duration) {
	c.printf("pong %s rtt=%s\n", sender.HostPort(), rtt.Round(time.Microsecond))
}

// sender 控制台用到的节点能力
type sender interface {
	Members() []vmbus.Address
	Stats() vmbus.Stats
	BroadcastText(body string) error
	PingAll() error
}

// handleLine 处理一行输入，返回 true 表示退出
//
// 支持的命令：
//   - /members 列出成员
//   - /ping    Ping 所有成员
//   - /stats   字节统计
//   - /quit    退出
//   - /help    帮助
//
// 其他非空行作为 Text 广播。
func (c *console) handleLine(s sender, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch line {
	case "/quit", "/exit":
		return true
	case "/help":
		c.printf("/members  列出成员\n/ping     Ping 所有成员\n/stats    字节统计\n/quit     退出\n")
		return false
	case "/members":
		members := s.Members()
		c.printf("%d 个成员\n", len(members))
		for _, m := range members {
			c.printf("  %s\n", m)
		}
		return false
	case "/stats":
		st := s.Stats()
		c.printf("入站 %d 字节 (%.1f B/s)，出站 %d 字节 (%.1f B/s)\n", st.TotalIn, st.RateIn, st.TotalOut, st.RateOut)
		return false
	case "/ping":
		if err := s.PingAll(); err != nil {
			c.printf("ping 失败: %v\n", err)
		}
		return false
	}

	if strings.HasPrefix(line, "/") {
		c.printf("未知命令 %s，/help 查看命令\n", line)
		return false
	}
	if err := s.BroadcastText(line); err != nil {
		c.printf("发送失败: %v\n", err)
	}
	return false
}
