package bus

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-vmbus/internal/core/codec"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// write 向一条连接写入命令
//
// I/O 失败时关闭连接（不删除表项），返回包装 ErrTransmission 的错误；
// 命令自身编码失败时不写入任何字节，连接保持可用。
func (b *Bus) write(c *connection, cmd interfaces.Command) error {
	n, err := c.send(cmd)
	if err == nil {
		b.reporter.LogSentCommand(cmd.CommandType(), n)
		return nil
	}

	var cmdErr *codec.CommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	_ = c.close()
	return fmt.Errorf("%w: %w", ErrTransmission, err)
}

// SendSynchronousUnicast 同步发送，命令写入传输层后返回
//
// 目标不在连接表中返回 ErrRecipientOffline（总线未连接时为 ErrNotConnected）；
// I/O 失败返回 ErrTransmission 并关闭该连接。
func (b *Bus) SendSynchronousUnicast(cmd interfaces.Command, addr types.Address) error {
	if !b.connected.Load() {
		return &NetworkError{Op: "send", Peer: addr, Err: ErrNotConnected}
	}
	c := b.lookup(addr)
	if c == nil {
		return &NetworkError{Op: "send", Peer: addr, Err: ErrRecipientOffline}
	}
	if err := b.write(c, cmd); err != nil {
		b.reporter.LogSendFailure("sync")
		return &NetworkError{Op: "send", Peer: addr, Err: err}
	}
	return nil
}

// SendAsyncUnicast 尽力发送，不返回错误
//
// 目标不在连接表中时记录日志；I/O 失败时关闭连接。
func (b *Bus) SendAsyncUnicast(cmd interfaces.Command, addr types.Address) {
	c := b.lookup(addr)
	if c == nil {
		logger.Debug("目标不在线，丢弃命令", "peer", addr, "type", cmd.CommandType())
		b.reporter.LogSendFailure("unicast")
		return
	}
	if err := b.write(c, cmd); err != nil {
		logger.Warn("发送命令失败", "peer", addr, "type", cmd.CommandType(), "error", err)
		b.reporter.LogSendFailure("unicast")
	}
}

// SendAsyncMulticast 向连接表快照中的所有节点尽力发送
//
// 快照在持锁时获取，写入在锁外并发进行，并发数受 Transport.FanOut 限制。
// 所有写入完成后返回。
func (b *Bus) SendAsyncMulticast(cmd interfaces.Command) {
	b.mu.Lock()
	targets := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(b.cfg.Transport.FanOut)
	for _, c := range targets {
		g.Go(func() error {
			if err := b.write(c, cmd); err != nil {
				logger.Warn("多播命令失败", "peer", c.addr, "type", cmd.CommandType(), "error", err)
				b.reporter.LogSendFailure("multicast")
			}
			return nil
		})
	}
	_ = g.Wait()
}
