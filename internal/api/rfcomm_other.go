//go:build !linux

package api

import (
	"context"

	"github.com/pkg/errors"
)

// DialRFCOMM 仅支持 Linux；其他平台先用系统工具配对绑定，再使用 serial 传输
func DialRFCOMM(ctx context.Context, addr [6]byte, channel int) (Transport, error) {
	return nil, errors.New("rfcomm transport is only supported on linux; bind the device and use the serial transport")
}
