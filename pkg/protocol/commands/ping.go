package commands

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// ============================================================================
//                              Ping
// ============================================================================

// Ping 往返时延探测
type Ping struct {
	SentAt time.Time
}

var _ interfaces.Command = (*Ping)(nil)

// NewPing 以当前时间创建 Ping
func NewPing() *Ping {
	return &Ping{SentAt: time.Now()}
}

// CommandType 实现 Command
func (p *Ping) CommandType() string { return TypePing }

// MarshalBinary 实现 Command
func (p *Ping) MarshalBinary() ([]byte, error) {
	return marshalTime(p.SentAt)
}

// UnmarshalBinary 实现 Command
func (p *Ping) UnmarshalBinary(data []byte) (err error) {
	p.SentAt, err = unmarshalTime(data)
	return err
}

// ExecuteUponReceipt 原样回送 SentAt
func (p *Ping) ExecuteUponReceipt(host interfaces.Host, sender types.Address) {
	r, ok := host.(Replier)
	if !ok {
		logger.Debug("宿主无法回复，忽略 Ping", "sender", sender)
		return
	}
	r.SendAsyncUnicast(&Pong{SentAt: p.SentAt}, sender)
}

// ============================================================================
//                              Pong
// ============================================================================

// Pong Ping 的回复
type Pong struct {
	SentAt time.Time
}

var _ interfaces.Command = (*Pong)(nil)

// CommandType 实现 Command
func (p *Pong) CommandType() string { return TypePong }

// MarshalBinary 实现 Command
func (p *Pong) MarshalBinary() ([]byte, error) {
	return marshalTime(p.SentAt)
}

// UnmarshalBinary 实现 Command
func (p *Pong) UnmarshalBinary(data []byte) (err error) {
	p.SentAt, err = unmarshalTime(data)
	return err
}

// ExecuteUponReceipt 计算往返时延
func (p *Pong) ExecuteUponReceipt(host interfaces.Host, sender types.Address) {
	r, ok := host.(PongReceiver)
	if !ok {
		return
	}
	r.ReceivePong(sender, time.Since(p.SentAt))
}

func marshalTime(t time.Time) ([]byte, error) {
	return proto.Marshal(timestamppb.New(t))
}

func unmarshalTime(data []byte) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(data, &ts); err != nil {
		return time.Time{}, err
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, err
	}
	return ts.AsTime(), nil
}
