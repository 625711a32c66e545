package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
)

// StreamVersion 当前流格式版本
const StreamVersion byte = 1

// DefaultMaxFrameSize 默认帧上限
const DefaultMaxFrameSize = 16 << 20

var streamHeader = [4]byte{'V', 'M', 'B', StreamVersion}

// ============================================================================
//                              Encoder
// ============================================================================

// Encoder 命令写入端
type Encoder struct {
	w        *bufio.Writer
	maxFrame int
}

// NewEncoder 创建 Encoder，立即写出并刷新流头
func NewEncoder(w io.Writer, maxFrame int) (*Encoder, error) {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(streamHeader[:]); err != nil {
		return nil, fmt.Errorf("codec: write stream header: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("codec: flush stream header: %w", err)
	}
	return &Encoder{w: bw, maxFrame: maxFrame}, nil
}

// Encode 写入一个命令并刷新，返回写入的字节数
func (e *Encoder) Encode(cmd interfaces.Command) (int, error) {
	frame, err := frameOf(cmd)
	if err != nil {
		return 0, err
	}
	if size := proto.Size(frame); size > e.maxFrame {
		return 0, &CommandError{Type: frame.TypeUrl, Op: "encode",
			Err: fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, e.maxFrame)}
	}

	n, err := protodelim.MarshalTo(e.w, frame)
	if err != nil {
		return n, err
	}
	return n, e.w.Flush()
}

// Marshal 将命令编码为单帧字节（不含流头），用于测试和大小估算
func Marshal(cmd interfaces.Command) ([]byte, error) {
	frame, err := frameOf(cmd)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := protodelim.MarshalTo(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func frameOf(cmd interfaces.Command) (*anypb.Any, error) {
	payload, err := cmd.MarshalBinary()
	if err != nil {
		return nil, &CommandError{Type: cmd.CommandType(), Op: "encode", Err: err}
	}
	return &anypb.Any{TypeUrl: cmd.CommandType(), Value: payload}, nil
}

// ============================================================================
//                              Decoder
// ============================================================================

// Decoder 命令读取端
type Decoder struct {
	r    *bufio.Reader
	reg  *Registry
	opts protodelim.UnmarshalOptions
}

// NewDecoder 创建 Decoder，阻塞读取并校验对端流头
//
// 调用方应在调用前为底层连接设置读超时。
func NewDecoder(r io.Reader, reg *Registry, maxFrame int) (*Decoder, error) {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	br := bufio.NewReader(r)

	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("codec: read stream header: %w", err)
	}
	if hdr != streamHeader {
		return nil, fmt.Errorf("%w: % x", ErrBadStreamHeader, hdr[:])
	}

	return &Decoder{
		r:    br,
		reg:  reg,
		opts: protodelim.UnmarshalOptions{MaxSize: int64(maxFrame)},
	}, nil
}

// Decode 读取下一个命令
//
// 对端正常关闭且没有半帧时返回 io.EOF。
func (d *Decoder) Decode() (interfaces.Command, error) {
	var frame anypb.Any
	if err := d.opts.UnmarshalFrom(d.r, &frame); err != nil {
		var tooLarge *protodelim.SizeTooLargeError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, tooLarge.Size, d.opts.MaxSize)
		}
		return nil, err
	}

	cmd, err := d.reg.New(frame.TypeUrl)
	if err != nil {
		return nil, &CommandError{Type: frame.TypeUrl, Op: "decode", Err: err}
	}
	if err := cmd.UnmarshalBinary(frame.Value); err != nil {
		return nil, &CommandError{Type: frame.TypeUrl, Op: "decode", Err: err}
	}
	return cmd, nil
}
