package vmbus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/protocol/commands"
)

// ============================================================================
//                              版本与预设
// ============================================================================

func TestVersionInfo(t *testing.T) {
	defer func(c, d string) { GitCommit, BuildDate = c, d }(GitCommit, BuildDate)

	GitCommit, BuildDate = "", ""
	assert.Equal(t, "vmbus "+Version, VersionInfo())

	GitCommit = "0123456789abcdef"
	BuildDate = "2024-01-01"
	assert.Equal(t, "vmbus "+Version+" (01234567) built 2024-01-01", VersionInfo())
}

func TestGetPresetConfig(t *testing.T) {
	lan, err := GetPresetConfig(PresetNameLAN)
	require.NoError(t, err)
	require.NoError(t, lan.Validate())
	assert.Empty(t, lan.Transport.AdvertiseIP)

	local, err := GetPresetConfig(PresetNameLocal)
	require.NoError(t, err)
	require.NoError(t, local.Validate())
	assert.Equal(t, "127.0.0.1", local.Transport.AdvertiseIP)
	assert.True(t, local.Discovery.Loopback)

	_, err = GetPresetConfig("mobile")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

// ============================================================================
//                              选项
// ============================================================================

func TestNew_OptionsOverrideBase(t *testing.T) {
	base := config.NewConfig()
	base.NetworkName = "from-config"
	base.Transport.ListenPort = 7000

	node, err := New(context.Background(),
		WithConfig(base),
		WithNetworkName("override"),
		WithHeartbeat(time.Second, 5*time.Second),
		WithMetrics(false),
	)
	require.NoError(t, err)
	defer node.Close()

	cfg := node.Config()
	assert.Equal(t, "override", cfg.NetworkName)
	assert.Equal(t, 7000, cfg.Transport.ListenPort)
	assert.Equal(t, time.Second, cfg.Discovery.HeartbeatInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Discovery.MaxResponseDelay.Duration())
	assert.False(t, cfg.Metrics.Enabled)

	// 调用方之后修改原配置不影响节点
	base.NetworkName = "mutated"
	assert.Equal(t, "override", node.Config().NetworkName)
}

func TestNew_PresetThenOverride(t *testing.T) {
	node, err := New(context.Background(),
		WithPreset(PresetNameLocal),
		WithAdvertiseIP("127.0.0.2"),
	)
	require.NoError(t, err)
	defer node.Close()

	cfg := node.Config()
	assert.Equal(t, "127.0.0.2", cfg.Transport.AdvertiseIP)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.HeartbeatInterval.Duration())
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("空网络名", func(t *testing.T) {
		_, err := New(ctx, WithNetworkName(""))
		assert.Error(t, err)
	})

	t.Run("端口越界", func(t *testing.T) {
		_, err := New(ctx, WithListenPort(70000))
		assert.Error(t, err)
	})

	t.Run("nil 配置", func(t *testing.T) {
		_, err := New(ctx, WithConfig(nil))
		assert.Error(t, err)
	})

	t.Run("未知预设", func(t *testing.T) {
		_, err := New(ctx, WithPreset("server"))
		assert.ErrorIs(t, err, ErrUnknownPreset)
	})

	t.Run("配置校验失败", func(t *testing.T) {
		_, err := New(ctx, WithHeartbeat(2*time.Second, time.Second))
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("无效公告地址", func(t *testing.T) {
		_, err := New(ctx, WithAdvertiseIP("not-an-ip"))
		assert.Error(t, err)
	})

	t.Run("重复命令类型", func(t *testing.T) {
		_, err := New(ctx, WithCommands(func() interfaces.Command { return &commands.Text{} }))
		assert.Error(t, err)
	})
}

func TestNew_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmbus.log")

	node, err := New(context.Background(), WithLogFile(path))
	require.NoError(t, err)
	require.NoError(t, node.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "日志文件初始化成功")
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestNode_NotStarted(t *testing.T) {
	node, err := New(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateIdle, node.State())
	assert.True(t, node.Address().IsZero())
	assert.Nil(t, node.Members())
	assert.ErrorIs(t, node.BroadcastText("hi"), ErrNotStarted)
	assert.ErrorIs(t, node.PingAll(), ErrNotStarted)
	assert.ErrorIs(t, node.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, node.Close())
	require.NoError(t, node.Close())
	assert.Equal(t, StateClosed, node.State())
	assert.ErrorIs(t, node.Start(context.Background()), ErrNodeClosed)
	assert.ErrorIs(t, node.BroadcastText("hi"), ErrNodeClosed)
}

func TestNode_StartStop(t *testing.T) {
	g := newRelayGroup(t)
	reg := prometheus.NewRegistry()

	node, err := Start(context.Background(), append(g.options(),
		WithNetworkName("lifecycle"),
		WithMetricsRegistry(reg),
	)...)
	require.NoError(t, err)
	defer node.Close()

	assert.Equal(t, StateRunning, node.State())
	addr := node.Address()
	require.False(t, addr.IsZero())
	assert.Equal(t, "127.0.0.1", addr.IP())
	assert.Equal(t, "lifecycle", addr.Network())
	assert.Empty(t, node.Members())
	assert.Equal(t, Stats{}, node.Stats())

	assert.ErrorIs(t, node.Start(context.Background()), ErrAlreadyStarted)

	// 指标注册到外部注册表
	families, err := node.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// 发给不存在的成员
	err = node.SendText(addr, "self")
	assert.ErrorIs(t, err, ErrRecipientOffline)

	require.NoError(t, node.Stop(context.Background()))
	assert.Equal(t, StateStopped, node.State())
	assert.True(t, node.Address().IsZero())
	assert.ErrorIs(t, node.Stop(context.Background()), ErrNodeClosed)
	assert.ErrorIs(t, node.Start(context.Background()), ErrNodeClosed)
	require.NoError(t, node.Close())
}

// ============================================================================
//                              端到端
// ============================================================================

func TestNode_TwoNodesExchangeText(t *testing.T) {
	g := newRelayGroup(t)
	ctx := context.Background()

	hostA, hostB := &testHost{}, &testHost{}
	a, err := Start(ctx, append(g.options(), WithNetworkName("e2e"), WithHost(hostA))...)
	require.NoError(t, err)
	defer a.Close()
	b, err := Start(ctx, append(g.options(), WithNetworkName("e2e"), WithHost(hostB))...)
	require.NoError(t, err)
	defer b.Close()

	require.Eventually(t, func() bool {
		return len(a.Members()) == 1 && len(b.Members()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, a.Members()[0].Equal(b.Address()))
	assert.True(t, b.Members()[0].Equal(a.Address()))

	require.NoError(t, a.SendText(b.Address(), "hello"))
	require.NoError(t, b.BroadcastText("world"))
	require.NoError(t, a.Ping(b.Address()))

	require.Eventually(t, func() bool {
		_, _, textsB, _ := hostB.counts()
		_, _, textsA, pongsA := hostA.counts()
		return textsB == 1 && textsA == 1 && pongsA == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"hello"}, hostB.textSnapshot())
	assert.Equal(t, []string{"world"}, hostA.textSnapshot())

	// 字节统计随命令流增长
	stats := a.Stats()
	assert.Positive(t, stats.TotalOut)
	assert.Positive(t, stats.TotalIn)
	assert.Positive(t, stats.RateOut)

	// B 关闭后 A 收到离开事件
	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		_, left, _, _ := hostA.counts()
		return left == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Empty(t, a.Members())

	joined, _, _, _ := hostA.counts()
	assert.Equal(t, 1, joined)
}
