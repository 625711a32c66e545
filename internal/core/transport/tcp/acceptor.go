package tcp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	tec "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/multierr"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/netaddr"
	"github.com/dep2p/go-vmbus/pkg/lib/log"
	"github.com/dep2p/go-vmbus/pkg/types"
)

var logger = log.Logger("core/transport/tcp")

// ConnectionSink 接收握手完成的连接
//
// AddConnection 可能阻塞（建立命令流），在每个连接自己的协程中调用。
type ConnectionSink interface {
	AddConnection(addr types.Address, conn net.Conn)
}

// ============================================================================
//                              Acceptor
// ============================================================================

// Acceptor master 端的连接接受器
type Acceptor struct {
	ln               *net.TCPListener
	sink             ConnectionSink
	handshakeTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	pending map[net.Conn]struct{} // 握手中的连接
	wg      sync.WaitGroup
}

// Listen 选择本地地址并绑定监听端口
//
// 返回的地址是本节点对外公告的地址，端口为实际绑定的端口。
func Listen(cfg *config.Config, sel netaddr.Selector, sink ConnectionSink) (*Acceptor, types.Address, error) {
	ip, err := sel.Select()
	if err != nil {
		return nil, types.Address{}, fmt.Errorf("select local address: %w", err)
	}

	bind := net.JoinHostPort(ip.String(), strconv.Itoa(cfg.Transport.ListenPort))
	l, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, types.Address{}, fmt.Errorf("listen %s: %w", bind, err)
	}
	ln := l.(*net.TCPListener)

	port := ln.Addr().(*net.TCPAddr).Port
	self, err := types.NewAddress(ip.String(), port, cfg.NetworkName)
	if err != nil {
		_ = ln.Close()
		return nil, types.Address{}, err
	}

	return &Acceptor{
		ln:               ln,
		sink:             sink,
		handshakeTimeout: cfg.Transport.HandshakeTimeout.Duration(),
		pending:          make(map[net.Conn]struct{}),
	}, self, nil
}

// Addr 返回监听地址
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Serve 运行接受循环，直到 Close
//
// 临时错误按退避重试；Close 后（包括 Close 之后才调用）返回 nil，
// 其他错误返回该错误。
func (a *Acceptor) Serve() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	var catcher tec.TempErrCatcher
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				logger.Debug("接受连接临时失败，重试", "error", err)
				continue
			}
			if a.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		catcher.Reset()

		if !a.track(conn) {
			_ = conn.Close()
			return nil
		}
		go a.handle(conn)
	}
}

// track 登记握手中的连接，已关闭时返回 false
func (a *Acceptor) track(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.pending[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn net.Conn) {
	a.mu.Lock()
	delete(a.pending, conn)
	a.mu.Unlock()
	a.wg.Done()
}

// handle 读取握手帧并交给 sink
func (a *Acceptor) handle(conn net.Conn) {
	setSocketOptions(conn)

	if a.handshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.handshakeTimeout))
	}
	addr, err := ReadHandshake(conn)
	if err != nil {
		if !a.isClosed() {
			logger.Warn("握手失败", "remote", conn.RemoteAddr(), "error", err)
		}
		_ = conn.Close()
		a.untrack(conn)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// sink 接管连接之后 Close 不再负责关闭它
	a.mu.Lock()
	delete(a.pending, conn)
	closed := a.closed
	a.mu.Unlock()
	defer a.wg.Done()

	if closed {
		_ = conn.Close()
		return
	}
	logger.Debug("收到握手", "peer", addr)
	a.sink.AddConnection(addr, conn)
}

func (a *Acceptor) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Close 关闭监听端口和握手中的连接，并等待所有协程退出
//
// 重复调用返回 nil。
func (a *Acceptor) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	err := a.ln.Close()
	for conn := range a.pending {
		err = multierr.Append(err, conn.Close())
	}
	a.mu.Unlock()

	a.wg.Wait()
	return err
}
