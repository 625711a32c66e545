package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dep2p/go-vmbus/pkg/types"
)

// handshakeHeaderSize 握手帧长度前缀字节数
const handshakeHeaderSize = 4

// WriteHandshake 写出握手帧
func WriteHandshake(w io.Writer, self types.Address) error {
	payload := self.Bytes()
	buf := make([]byte, handshakeHeaderSize, handshakeHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

// ReadHandshake 读取握手帧
//
// 长度为 0 或超过 types.MaxAddressSize 时返回 ErrHandshake，不读取负载。
func ReadHandshake(r io.Reader) (types.Address, error) {
	var hdr [handshakeHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return types.Address{}, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > types.MaxAddressSize {
		return types.Address{}, fmt.Errorf("%w: length %d", ErrHandshake, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return types.Address{}, err
	}

	addr, err := types.AddressFromBytes(payload)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return addr, nil
}
