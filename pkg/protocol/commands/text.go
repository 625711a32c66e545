package commands

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/lib/log"
	"github.com/dep2p/go-vmbus/pkg/types"
)

var logger = log.Logger("protocol/commands")

// Text 文本消息
type Text struct {
	Body string
}

var _ interfaces.Command = (*Text)(nil)

// NewText 创建文本消息
func NewText(body string) *Text {
	return &Text{Body: body}
}

// CommandType 实现 Command
func (t *Text) CommandType() string { return TypeText }

// MarshalBinary 实现 Command
func (t *Text) MarshalBinary() ([]byte, error) {
	return proto.Marshal(wrapperspb.String(t.Body))
}

// UnmarshalBinary 实现 Command
func (t *Text) UnmarshalBinary(data []byte) error {
	var v wrapperspb.StringValue
	if err := proto.Unmarshal(data, &v); err != nil {
		return err
	}
	t.Body = v.GetValue()
	return nil
}

// ExecuteUponReceipt 实现 Command
func (t *Text) ExecuteUponReceipt(host interfaces.Host, sender types.Address) {
	r, ok := host.(TextReceiver)
	if !ok {
		logger.Debug("宿主不接收文本消息，忽略", "sender", sender)
		return
	}
	r.ReceiveText(sender, t.Body)
}
