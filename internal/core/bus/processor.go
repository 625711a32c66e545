package bus

import (
	"errors"
	"io"
	"net"
)

// process 连接的命令处理协程
//
// 循环解码命令并在本协程中执行。任何错误或命令 panic 都会结束循环，
// 退出时关闭连接并调用一次 RemoveConnection。
func (b *Bus) process(c *connection) {
	defer b.processors.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("命令执行 panic，关闭连接", "peer", c.addr, "session", c.shortID(), "panic", r)
		}
		_ = c.close()
		b.RemoveConnection(c.addr, c.sock)
	}()

	for {
		cmd, err := c.dec.Decode()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				logger.Debug("连接已关闭", "peer", c.addr, "session", c.shortID())
			default:
				logger.Warn("读取命令失败，关闭连接", "peer", c.addr, "session", c.shortID(), "error", err)
			}
			return
		}

		b.reporter.LogRecvCommand(cmd.CommandType())
		cmd.ExecuteUponReceipt(b.host, c.addr)
	}
}
