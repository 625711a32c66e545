package vmbus

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dep2p/go-vmbus/internal/core/bus"
	"github.com/dep2p/go-vmbus/internal/core/discovery/multicast"
)

// ============================================================================
//                     relayGroup - 用单播 UDP 转发模拟多播组
// ============================================================================

type relayGroup struct {
	relay *net.UDPConn

	mu      sync.Mutex
	members []net.Addr
}

func newRelayGroup(t *testing.T) *relayGroup {
	t.Helper()
	relay, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	g := &relayGroup{relay: relay}
	go g.forward()
	t.Cleanup(func() { _ = relay.Close() })
	return g
}

func (g *relayGroup) forward() {
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

// addr 作为配置中的多播组地址
func (g *relayGroup) addr() string {
	return g.relay.LocalAddr().String()
}

// options 返回让节点使用该转发组的选项
func (g *relayGroup) options() []Option {
	openListener := func(multicast.Config) (net.PacketConn, error) {
		c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.members = append(g.members, c.LocalAddr())
		g.mu.Unlock()
		return c, nil
	}
	openSender := func(multicast.Config) (net.PacketConn, error) {
		return net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	}

	return []Option{
		WithAdvertiseIP("127.0.0.1"),
		WithMulticastGroup(g.addr()),
		WithHeartbeat(50*time.Millisecond, time.Minute),
		WithFxOption(fx.Provide(fx.Annotate(
			func() bus.Option {
				return bus.WithMulticastOptions(
					multicast.WithListenerSocket(openListener),
					multicast.WithSenderSocket(openSender),
				)
			},
			fx.ResultTags(`group:"bus_options"`),
		))),
	}
}

// ============================================================================
//                     testHost
// ============================================================================

type testHost struct {
	mu     sync.Mutex
	joined []Address
	left   []Address
	texts  []string
	rtts   []time.Duration
}

func (h *testHost) MemberJoined(addr Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined = append(h.joined, addr)
}

func (h *testHost) MemberLeft(addr Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, addr)
}

func (h *testHost) ReceiveText(_ Address, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, body)
}

func (h *testHost) ReceivePong(_ Address, rtt time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rtts = append(h.rtts, rtt)
}

func (h *testHost) counts() (joined, left, texts, pongs int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.joined), len(h.left), len(h.texts), len(h.rtts)
}

func (h *testHost) textSnapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}
