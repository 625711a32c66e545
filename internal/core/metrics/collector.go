package metrics

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "vmbus"

// Collector 基于 Prometheus 的 Reporter 实现
type Collector struct {
	members        prometheus.Gauge
	joins          prometheus.Counter
	leaves         prometheus.Counter
	heartbeatsSent *prometheus.CounterVec
	heartbeatsRecv *prometheus.CounterVec
	commandsSent   *prometheus.CounterVec
	commandsRecv   *prometheus.CounterVec
	bytesSent      prometheus.Counter
	bytesRecv      prometheus.Counter
	sendFailures   *prometheus.CounterVec
	sweepClosed    prometheus.Counter

	inRate  *RateMeter
	outRate *RateMeter
}

// NewCollector 创建 Collector 并注册到 reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	return newCollector(reg, clock.New())
}

func newCollector(reg prometheus.Registerer, clk clock.Clock) (*Collector, error) {
	c := &Collector{
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "members",
			Help: "Number of peers in the connection table.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "member_joins_total",
			Help: "Peers that joined.",
		}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "member_leaves_total",
			Help: "Peers that left.",
		}),
		heartbeatsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "discovery", Name: "heartbeats_sent_total",
			Help: "Heartbeat datagrams sent, by status.",
		}, []string{"status"}),
		heartbeatsRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "discovery", Name: "heartbeats_received_total",
			Help: "Heartbeat datagrams received, by result.",
		}, []string{"result"}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_sent_total",
			Help: "Commands written to a connection, by type.",
		}, []string{"type"}),
		commandsRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_received_total",
			Help: "Commands decoded from a connection, by type.",
		}, []string{"type"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sent_bytes_total",
			Help: "Command frame bytes written.",
		}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "received_bytes_total",
			Help: "Command stream bytes read.",
		}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_failures_total",
			Help: "Failed sends, by operation.",
		}, []string{"op"}),
		sweepClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_closed_total",
			Help: "Connections closed because no heartbeat was seen in time.",
		}),
		inRate:  NewRateMeter(clk),
		outRate: NewRateMeter(clk),
	}

	if reg != nil {
		var err error
		for _, col := range []prometheus.Collector{
			c.members, c.joins, c.leaves,
			c.heartbeatsSent, c.heartbeatsRecv,
			c.commandsSent, c.commandsRecv,
			c.bytesSent, c.bytesRecv,
			c.sendFailures, c.sweepClosed,
		} {
			err = multierr.Append(err, reg.Register(col))
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LogMemberJoined 实现 Reporter
func (c *Collector) LogMemberJoined(members int) {
	c.joins.Inc()
	c.members.Set(float64(members))
}

// LogMemberLeft 实现 Reporter
func (c *Collector) LogMemberLeft(members int) {
	c.leaves.Inc()
	c.members.Set(float64(members))
}

// LogHeartbeatSent 实现 Reporter
func (c *Collector) LogHeartbeatSent(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.heartbeatsSent.WithLabelValues(status).Inc()
}

// LogHeartbeatReceived 实现 Reporter
func (c *Collector) LogHeartbeatReceived(result string) {
	c.heartbeatsRecv.WithLabelValues(result).Inc()
}

// LogSentCommand 实现 Reporter
func (c *Collector) LogSentCommand(cmdType string, size int) {
	c.commandsSent.WithLabelValues(cmdType).Inc()
	c.bytesSent.Add(float64(size))
	c.outRate.Add(int64(size))
}

// LogRecvCommand 实现 Reporter
func (c *Collector) LogRecvCommand(cmdType string) {
	c.commandsRecv.WithLabelValues(cmdType).Inc()
}

// LogRecvBytes 实现 Reporter
func (c *Collector) LogRecvBytes(size int) {
	c.bytesRecv.Add(float64(size))
	c.inRate.Add(int64(size))
}

// LogSendFailure 实现 Reporter
func (c *Collector) LogSendFailure(op string) {
	c.sendFailures.WithLabelValues(op).Inc()
}

// LogSweepClosed 实现 Reporter
func (c *Collector) LogSweepClosed(n int) {
	if n > 0 {
		c.sweepClosed.Add(float64(n))
	}
}

// Totals 实现 Reporter
func (c *Collector) Totals() Stats {
	return Stats{
		TotalIn:  c.inRate.Total(),
		TotalOut: c.outRate.Total(),
		RateIn:   c.inRate.Rate(),
		RateOut:  c.outRate.Rate(),
	}
}
