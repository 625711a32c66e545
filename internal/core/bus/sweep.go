package bus

import (
	"context"
	"time"
)

// sweepLoop 周期性关闭超时未收到心跳的连接
func (b *Bus) sweepLoop(ctx context.Context) {
	ticker := b.clock.Ticker(b.cfg.Discovery.SweepInterval.Duration())
	defer ticker.Stop()

	maxDelay := b.cfg.Discovery.MaxResponseDelay.Duration()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.CloseConnectionsNotSeenIn(maxDelay); n > 0 {
				logger.Info("关闭超时连接", "count", n, "maxResponseDelay", maxDelay)
			}
		}
	}
}

// CloseConnectionsNotSeenIn 关闭 now - lastSeen > period 的连接，返回关闭数量
//
// 只关闭不删除：表项由处理协程在读失败后注销。
func (b *Bus) CloseConnectionsNotSeenIn(period time.Duration) int {
	now := b.clock.Now()

	b.mu.Lock()
	var stale []*connection
	for _, c := range b.conns {
		if !c.closed.Load() && now.Sub(c.lastSeenAt()) > period {
			stale = append(stale, c)
		}
	}
	b.mu.Unlock()

	for _, c := range stale {
		logger.Debug("连接超时", "peer", c.addr, "session", c.shortID(), "lastSeen", c.lastSeenAt())
		_ = c.close()
	}
	b.reporter.LogSweepClosed(len(stale))
	return len(stale)
}
