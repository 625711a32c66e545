package types

import "errors"

// ============================================================================
//                              地址相关错误
// ============================================================================

var (
	// ErrAddressTooLong 地址编码超过 MaxAddressSize
	ErrAddressTooLong = errors.New("address encoding exceeds 256 bytes")

	// ErrInvalidAddress 无效的地址编码
	ErrInvalidAddress = errors.New("invalid address")
)
