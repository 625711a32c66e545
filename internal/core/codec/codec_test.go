package codec

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/protocol/commands"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// blobCommand 测试用命令，负载原样传输
type blobCommand struct {
	data []byte
	fail bool
}

func (c *blobCommand) CommandType() string { return "test.Blob" }

func (c *blobCommand) MarshalBinary() ([]byte, error) {
	if c.fail {
		return nil, errors.New("boom")
	}
	return c.data, nil
}

func (c *blobCommand) UnmarshalBinary(data []byte) error {
	if bytes.Equal(data, []byte("bad")) {
		return errors.New("bad payload")
	}
	c.data = append([]byte(nil), data...)
	return nil
}

func (c *blobCommand) ExecuteUponReceipt(interfaces.Host, types.Address) {}

func testRegistry() *Registry {
	return DefaultRegistry().MustRegister(func() interfaces.Command { return &blobCommand{} })
}

// ============================================================================
//                     编解码测试
// ============================================================================

// TestCodec_RoundTrip 测试多个命令按序编解码
func TestCodec_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("VMB\x01"), buf.Bytes())

	sent := []interfaces.Command{
		commands.NewText("first"),
		&blobCommand{data: []byte{1, 2, 3}},
		commands.NewText(""),
		&commands.Ping{SentAt: time.Unix(1700000000, 42)},
	}
	for _, cmd := range sent {
		_, err := enc.Encode(cmd)
		require.NoError(t, err)
	}

	dec, err := NewDecoder(&buf, testRegistry(), 0)
	require.NoError(t, err)

	got, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "first", got.(*commands.Text).Body)

	got, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.(*blobCommand).data)

	got, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "", got.(*commands.Text).Body)

	got, err = dec.Decode()
	require.NoError(t, err)
	assert.True(t, time.Unix(1700000000, 42).Equal(got.(*commands.Ping).SentAt))

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

// TestDecoder_BadHeader 测试流头校验
func TestDecoder_BadHeader(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("XYZ\x01"), testRegistry(), 0)
	assert.ErrorIs(t, err, ErrBadStreamHeader)

	_, err = NewDecoder(strings.NewReader("VMB\x02"), testRegistry(), 0)
	assert.ErrorIs(t, err, ErrBadStreamHeader)

	_, err = NewDecoder(strings.NewReader("VM"), testRegistry(), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestDecoder_UnknownCommand 测试未注册的命令类型
func TestDecoder_UnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, 0)
	require.NoError(t, err)
	_, err = enc.Encode(&blobCommand{data: []byte("x")})
	require.NoError(t, err)

	dec, err := NewDecoder(&buf, DefaultRegistry(), 0)
	require.NoError(t, err)
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrUnknownCommand)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "test.Blob", cmdErr.Type)
	assert.Equal(t, "decode", cmdErr.Op)
}

// TestDecoder_PayloadError 测试负载反序列化失败
func TestDecoder_PayloadError(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, 0)
	require.NoError(t, err)
	_, err = enc.Encode(&blobCommand{data: []byte("bad")})
	require.NoError(t, err)

	dec, err := NewDecoder(&buf, testRegistry(), 0)
	require.NoError(t, err)
	_, err = dec.Decode()
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

// TestCodec_FrameTooLarge 测试帧上限
func TestCodec_FrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, 64)
	require.NoError(t, err)
	_, err = enc.Encode(&blobCommand{data: make([]byte, 128)})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// 发送端不限制，接收端限制
	buf.Reset()
	enc, err = NewEncoder(&buf, 0)
	require.NoError(t, err)
	_, err = enc.Encode(&blobCommand{data: make([]byte, 128)})
	require.NoError(t, err)

	dec, err := NewDecoder(&buf, testRegistry(), 64)
	require.NoError(t, err)
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// TestEncoder_MarshalError 测试命令序列化失败不写入任何字节
func TestEncoder_MarshalError(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, 0)
	require.NoError(t, err)
	n := buf.Len()

	_, err = enc.Encode(&blobCommand{fail: true})
	assert.Error(t, err)
	assert.Equal(t, n, buf.Len())
}

// TestDecoder_TruncatedFrame 测试半帧
func TestDecoder_TruncatedFrame(t *testing.T) {
	frame, err := Marshal(commands.NewText("hello world"))
	require.NoError(t, err)

	stream := append([]byte("VMB\x01"), frame[:len(frame)-3]...)
	dec, err := NewDecoder(bytes.NewReader(stream), testRegistry(), 0)
	require.NoError(t, err)

	_, err = dec.Decode()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

// TestCodec_BothSidesHeaderFirst 测试双方先写流头再读流头不会死锁
func TestCodec_BothSidesHeaderFirst(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	type side struct {
		enc *Encoder
		dec *Decoder
		err error
	}
	setup := func(c net.Conn) side {
		_ = c.SetDeadline(time.Now().Add(5 * time.Second))
		enc, err := NewEncoder(c, 0)
		if err != nil {
			return side{err: err}
		}
		dec, err := NewDecoder(c, testRegistry(), 0)
		return side{enc: enc, dec: dec, err: err}
	}

	accepted := make(chan side, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- side{err: err}
			return
		}
		accepted <- setup(c)
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	client := setup(c)
	require.NoError(t, client.err)
	server := <-accepted
	require.NoError(t, server.err)

	_, err = client.enc.Encode(commands.NewText("ping"))
	require.NoError(t, err)
	got, err := server.dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "ping", got.(*commands.Text).Body)
}

// ============================================================================
//                     注册表测试
// ============================================================================

// TestRegistry 测试注册与查找
func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{commands.TypePing, commands.TypePong, commands.TypeText}, reg.Types())

	cmd, err := reg.New(commands.TypeText)
	require.NoError(t, err)
	assert.IsType(t, &commands.Text{}, cmd)

	_, err = reg.New("nope")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	err = reg.Register(func() interfaces.Command { return &commands.Text{} })
	assert.ErrorIs(t, err, ErrDuplicateCommand)

	assert.Panics(t, func() {
		reg.MustRegister(func() interfaces.Command { return &commands.Ping{} })
	})
}
