package multicast

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/pkg/types"
)

func addr(t *testing.T, ip string, port int, network string) types.Address {
	t.Helper()
	a, err := types.NewAddress(ip, port, network)
	require.NoError(t, err)
	return a
}

func testConfig(group *net.UDPAddr) Config {
	return Config{
		Group:       group,
		Interval:    20 * time.Millisecond,
		TTL:         1,
		Loopback:    true,
		DialTimeout: time.Second,
	}
}

// fakeMembership 记录调用的连接表
type fakeMembership struct {
	mu    sync.Mutex
	known map[types.Address]bool
	added []types.Address
	ch    chan types.Address
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{known: map[types.Address]bool{}, ch: make(chan types.Address, 16)}
}

func (m *fakeMembership) UpdateTimeLastSeen(a types.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known[a]
}

func (m *fakeMembership) AddConnection(a types.Address, conn net.Conn) {
	m.mu.Lock()
	m.added = append(m.added, a)
	m.known[a] = true
	m.mu.Unlock()
	_ = conn.Close()
	m.ch <- a
}

// blockingDialer 在 release 关闭前阻塞的拨号函数
type blockingDialer struct {
	calls   atomic.Int32
	release chan struct{}
}

func (d *blockingDialer) dial(ctx context.Context, _, _ types.Address, _ time.Duration) (net.Conn, error) {
	d.calls.Add(1)
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c1, c2 := net.Pipe()
	_ = c2.Close()
	return c1, nil
}

// ============================================================================
//                     Elect 测试
// ============================================================================

// TestElect 测试角色选举
func TestElect(t *testing.T) {
	low := addr(t, "10.0.0.1", 4000, "n1")
	high := addr(t, "10.0.0.2", 4000, "n1")

	role, err := Elect(high, low)
	require.NoError(t, err)
	assert.Equal(t, Master, role)

	role, err = Elect(low, high)
	require.NoError(t, err)
	assert.Equal(t, Slave, role)

	_, err = Elect(low, low)
	assert.ErrorIs(t, err, ErrAddressConflict)

	assert.Equal(t, "master", Master.String())
	assert.Equal(t, "slave", Slave.String())
}

// ============================================================================
//                     handleDatagram 测试
// ============================================================================

// TestHandleDatagram_Classification 测试心跳分类
func TestHandleDatagram_Classification(t *testing.T) {
	self := addr(t, "10.0.0.5", 4000, "n1")
	known := addr(t, "10.0.0.9", 4000, "n1")
	lower := addr(t, "10.0.0.1", 4000, "n1")
	higher := addr(t, "10.0.0.7", 4000, "n1")
	foreign := addr(t, "10.0.0.9", 4000, "n2")

	m := newFakeMembership()
	m.known[known] = true
	d := &blockingDialer{release: make(chan struct{})}
	close(d.release)

	l := NewListener(testConfig(nil), self, m, WithDialer(d.dial))
	defer l.Close()

	assert.Equal(t, metrics.HeartbeatInvalid, l.handleDatagram([]byte{1, 2, 3}))
	assert.Equal(t, metrics.HeartbeatForeign, l.handleDatagram(foreign.Bytes()))
	assert.Equal(t, metrics.HeartbeatSelf, l.handleDatagram(self.Bytes()))
	assert.Equal(t, metrics.HeartbeatKnown, l.handleDatagram(known.Bytes()))
	assert.Equal(t, metrics.HeartbeatWait, l.handleDatagram(lower.Bytes()))
	assert.Equal(t, metrics.HeartbeatDial, l.handleDatagram(higher.Bytes()))

	select {
	case got := <-m.ch:
		assert.Equal(t, higher, got)
	case <-time.After(2 * time.Second):
		t.Fatal("AddConnection not called")
	}
	assert.Equal(t, int32(1), d.calls.Load())
}

// TestHandleDatagram_ForeignLoggedOnce 测试其他网络节点只记录一次
func TestHandleDatagram_ForeignLoggedOnce(t *testing.T) {
	self := addr(t, "10.0.0.5", 4000, "n1")
	foreign := addr(t, "10.0.0.9", 4000, "n2")

	l := NewListener(testConfig(nil), self, newFakeMembership())
	defer l.Close()

	l.handleDatagram(foreign.Bytes())
	l.handleDatagram(foreign.Bytes())
	assert.Equal(t, 1, l.foreign.Len())
	assert.True(t, l.foreign.Contains(foreign.String()))
}

// TestHandleDatagram_SingleDialInFlight 测试同一节点并发心跳只拨号一次
func TestHandleDatagram_SingleDialInFlight(t *testing.T) {
	self := addr(t, "10.0.0.1", 4000, "n1")
	master := addr(t, "10.0.0.2", 4000, "n1")

	m := newFakeMembership()
	d := &blockingDialer{release: make(chan struct{})}
	l := NewListener(testConfig(nil), self, m, WithDialer(d.dial))
	defer l.Close()

	for i := 0; i < 5; i++ {
		assert.Equal(t, metrics.HeartbeatDial, l.handleDatagram(master.Bytes()))
	}
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	close(d.release)
	<-m.ch

	// 已在连接表中，之后的心跳只刷新 lastSeen
	assert.Equal(t, metrics.HeartbeatKnown, l.handleDatagram(master.Bytes()))
	assert.Equal(t, int32(1), d.calls.Load())
}

// TestListener_CloseCancelsDial 测试关闭时取消进行中的拨号
func TestListener_CloseCancelsDial(t *testing.T) {
	self := addr(t, "10.0.0.1", 4000, "n1")
	master := addr(t, "10.0.0.2", 4000, "n1")

	m := newFakeMembership()
	d := &blockingDialer{release: make(chan struct{})}
	l := NewListener(testConfig(nil), self, m, WithDialer(d.dial))

	l.handleDatagram(master.Bytes())
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Empty(t, m.added)
}

// ============================================================================
//                     套接字测试（单播 UDP 代替多播）
// ============================================================================

// unicastListener 返回绑定 127.0.0.1 的 OpenFunc，并通过 ch 暴露地址
func unicastListener(ch chan<- *net.UDPAddr) OpenFunc {
	return func(Config) (net.PacketConn, error) {
		c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		if err != nil {
			return nil, err
		}
		ch <- c.LocalAddr().(*net.UDPAddr)
		return c, nil
	}
}

func unicastSender(Config) (net.PacketConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
}

// TestBroadcaster_SendsHeartbeats 测试周期发送
func TestBroadcaster_SendsHeartbeats(t *testing.T) {
	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sink.Close()

	self := addr(t, "127.0.0.1", 4000, "n1")
	clk := clock.NewMock()
	b := NewBroadcaster(testConfig(sink.LocalAddr().(*net.UDPAddr)), self,
		WithSenderSocket(unicastSender), WithClock(clk))
	b.Start()
	defer b.Stop()

	buf := make([]byte, 512)
	for i := 0; i < 3; i++ {
		if i > 0 {
			// 循环可能尚未创建 ticker，推进时钟直到收到
			go func() {
				for j := 0; j < 50; j++ {
					clk.Add(20 * time.Millisecond)
					time.Sleep(5 * time.Millisecond)
				}
			}()
		}
		_ = sink.SetReadDeadline(time.Now().Add(3 * time.Second))
		n, _, err := sink.ReadFrom(buf)
		require.NoError(t, err)
		got, err := types.AddressFromBytes(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, self, got)
	}
}

// failingConn 写入总是失败的 PacketConn
type failingConn struct {
	net.PacketConn
	closed atomic.Bool
}

func (c *failingConn) WriteTo([]byte, net.Addr) (int, error) {
	return 0, errors.New("network unreachable")
}

func (c *failingConn) Close() error {
	c.closed.Store(true)
	return nil
}

// TestBroadcaster_RecreatesSocket 测试发送失败后重建套接字
func TestBroadcaster_RecreatesSocket(t *testing.T) {
	var opened atomic.Int32
	var first *failingConn
	open := func(Config) (net.PacketConn, error) {
		opened.Add(1)
		c := &failingConn{}
		if first == nil {
			first = c
		}
		return c, nil
	}

	b := NewBroadcaster(testConfig(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}),
		addr(t, "127.0.0.1", 4000, "n1"), WithSenderSocket(open))

	b.send()
	require.NotNil(t, first)
	assert.True(t, first.closed.Load())

	require.Eventually(t, func() bool {
		b.send()
		return opened.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Stop())
}

// TestBroadcaster_StopIdempotent 测试重复停止与停止后不再启动
func TestBroadcaster_StopIdempotent(t *testing.T) {
	b := NewBroadcaster(testConfig(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}),
		addr(t, "127.0.0.1", 4000, "n1"), WithSenderSocket(unicastSender))
	b.Start()
	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())

	b.Start()
	assert.Nil(t, b.socket())
}

// TestListener_ReceivesAndDials 测试端到端接收心跳并发起连接
func TestListener_ReceivesAndDials(t *testing.T) {
	self := addr(t, "127.0.0.1", 4000, "n1")
	master := addr(t, "127.0.0.2", 4000, "n1")

	m := newFakeMembership()
	d := &blockingDialer{release: make(chan struct{})}
	close(d.release)

	addrs := make(chan *net.UDPAddr, 4)
	l := NewListener(testConfig(nil), self, m,
		WithListenerSocket(unicastListener(addrs)), WithDialer(d.dial))
	require.NoError(t, l.Start())
	defer l.Close()

	sender, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.WriteTo(master.Bytes(), <-addrs)
	require.NoError(t, err)

	select {
	case got := <-m.ch:
		assert.Equal(t, master, got)
	case <-time.After(3 * time.Second):
		t.Fatal("AddConnection not called")
	}
}

// TestListener_StartFailure 测试首次打开套接字失败
func TestListener_StartFailure(t *testing.T) {
	open := func(Config) (net.PacketConn, error) { return nil, errors.New("no multicast") }
	l := NewListener(testConfig(nil), addr(t, "127.0.0.1", 4000, "n1"), newFakeMembership(),
		WithListenerSocket(open))
	assert.Error(t, l.Start())
	assert.NoError(t, l.Close())
}

// TestConfigFromUnified 测试从统一配置转换
func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	c, err := ConfigFromUnified(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4446, c.Group.Port)
	assert.Equal(t, config.DefaultHeartbeatInterval, c.Interval)
	assert.Equal(t, config.DefaultDialTimeout, c.DialTimeout)
	assert.True(t, c.Loopback)
}
