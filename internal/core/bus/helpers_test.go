package bus

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/codec"
	"github.com/dep2p/go-vmbus/internal/core/discovery/multicast"
	"github.com/dep2p/go-vmbus/internal/core/netaddr"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// ============================================================================
//                     loopGroup - 用单播 UDP 模拟多播组
// ============================================================================

// loopGroup 把发往 relay 的每个数据报转发给所有监听套接字
type loopGroup struct {
	relay *net.UDPConn

	mu      sync.Mutex
	members []net.Addr
}

func newLoopGroup(t *testing.T) *loopGroup {
	t.Helper()
	relay, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	g := &loopGroup{relay: relay}
	go g.forward()
	t.Cleanup(func() { _ = relay.Close() })
	return g
}

func (g *loopGroup) forward() {
	buf := make([]byte, 1024)
	for {
		n, _, err := g.relay.ReadFrom(buf)
		if err != nil {
			return
		}
		g.mu.Lock()
		members := append([]net.Addr(nil), g.members...)
		g.mu.Unlock()
		for _, m := range members {
			_, _ = g.relay.WriteTo(buf[:n], m)
		}
	}
}

func (g *loopGroup) openListener(multicast.Config) (net.PacketConn, error) {
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.members = append(g.members, c.LocalAddr())
	g.mu.Unlock()
	return c, nil
}

func (g *loopGroup) openSender(multicast.Config) (net.PacketConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
}

// ============================================================================
//                     recordingHost
// ============================================================================

type recordingHost struct {
	mu      sync.Mutex
	joined  []types.Address
	left    []types.Address
	texts   []string
	senders []types.Address

	onJoined func(types.Address)
}

func (h *recordingHost) MemberJoined(a types.Address) {
	h.mu.Lock()
	h.joined = append(h.joined, a)
	cb := h.onJoined
	h.mu.Unlock()
	if cb != nil {
		cb(a)
	}
}

func (h *recordingHost) MemberLeft(a types.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, a)
}

func (h *recordingHost) ReceiveText(sender types.Address, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, body)
	h.senders = append(h.senders, sender)
}

func (h *recordingHost) counts() (joined, left int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.joined), len(h.left)
}

func (h *recordingHost) textCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.texts)
}

// ============================================================================
//                     测试命令
// ============================================================================

// panicCommand 执行时 panic
type panicCommand struct{}

func (panicCommand) CommandType() string { return "test.Panic" }
func (panicCommand) MarshalBinary() ([]byte, error) { return nil, nil }
func (*panicCommand) UnmarshalBinary([]byte) error { return nil }
func (panicCommand) ExecuteUponReceipt(interfaces.Host, types.Address) { panic("boom") }

// unknownCommand 总线注册表中不存在的命令类型
type unknownCommand struct{}

func (unknownCommand) CommandType() string { return "test.Unknown" }
func (unknownCommand) MarshalBinary() ([]byte, error) { return []byte("x"), nil }
func (unknownCommand) UnmarshalBinary([]byte) error { return nil }
func (unknownCommand) ExecuteUponReceipt(interfaces.Host, types.Address) {}

func testRegistry() *codec.Registry {
	return codec.DefaultRegistry().MustRegister(func() interfaces.Command { return &panicCommand{} })
}

// ============================================================================
//                     总线构造
// ============================================================================

func testConfig(g *loopGroup) *config.Config {
	cfg := config.NewConfig().WithNetworkName("test")
	cfg.Discovery.Group = g.relay.LocalAddr().String()
	cfg.Discovery.HeartbeatInterval = config.Duration(50 * time.Millisecond)
	cfg.Discovery.MaxResponseDelay = config.Duration(time.Minute)
	cfg.Discovery.SweepInterval = config.Duration(200 * time.Millisecond)
	cfg.Transport.HandshakeTimeout = config.Duration(2 * time.Second)
	cfg.Transport.DialTimeout = config.Duration(2 * time.Second)
	return cfg
}

func newTestBus(t *testing.T, g *loopGroup, cfg *config.Config, host interfaces.Host, opts ...Option) *Bus {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(g)
	}
	opts = append([]Option{
		WithSelector(netaddr.LoopbackSelector{}),
		WithRegistry(testRegistry()),
		WithMulticastOptions(
			multicast.WithListenerSocket(g.openListener),
			multicast.WithSenderSocket(g.openSender),
		),
	}, opts...)

	b, err := New(cfg, host, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b
}

func connect(t *testing.T, b *Bus) types.Address {
	t.Helper()
	self, err := b.Connect(context.Background())
	require.NoError(t, err)
	return self
}

// ============================================================================
//                     远端模拟
// ============================================================================

// remotePeer 手工建立的远端，持有与总线相连的套接字另一端
type remotePeer struct {
	conn net.Conn
	enc  *codec.Encoder
	dec  *codec.Decoder
}

// tcpPair 返回一对相连的 TCP 套接字
func tcpPair(t *testing.T) (local, remote net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()

	remote, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	local = <-accepted
	require.NotNil(t, local)
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	return local, remote
}

// attach 把一条新连接交给总线，同时在远端建立命令流
func attach(t *testing.T, b *Bus, addr types.Address, wrap func(net.Conn) net.Conn) *remotePeer {
	t.Helper()
	local, remote := tcpPair(t)
	if wrap != nil {
		local = wrap(local)
	}

	peerCh := openRemote(remote)
	b.AddConnection(addr, local)
	p := <-peerCh
	require.NotNil(t, p)
	return p
}

// openRemote 在后台建立远端命令流
func openRemote(remote net.Conn) <-chan *remotePeer {
	peerCh := make(chan *remotePeer, 1)
	go func() {
		enc, err := codec.NewEncoder(remote, 0)
		if err != nil {
			peerCh <- nil
			return
		}
		dec, err := codec.NewDecoder(remote, testRegistry(), 0)
		if err != nil {
			peerCh <- nil
			return
		}
		peerCh <- &remotePeer{conn: remote, enc: enc, dec: dec}
	}()
	return peerCh
}

// failingConn 可以让写入失败的连接
type failingConn struct {
	net.Conn
	fail atomic.Bool
}

func (c *failingConn) Write(p []byte) (int, error) {
	if c.fail.Load() {
		return 0, errors.New("broken pipe")
	}
	return c.Conn.Write(p)
}

// dialedTo 本端到 peer 的连接是否由本端发起（远端端口即 peer 的监听端口）
func dialedTo(b *Bus, peer types.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[peer]
	if !ok {
		return false
	}
	remote, ok := c.sock.RemoteAddr().(*net.TCPAddr)
	return ok && remote.Port == peer.Port()
}

func mustAddr(t *testing.T, ip string, port int, network string) types.Address {
	t.Helper()
	a, err := types.NewAddress(ip, port, network)
	require.NoError(t, err)
	return a
}
