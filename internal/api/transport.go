package api

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"loud-plotter/internal/service"
)

// ErrEndOfReplay 回放文件读完，不是传输故障
var ErrEndOfReplay = errors.New("end of replay")

// Transport 是与传感器之间的字节流
type Transport interface {
	// Send 向设备写入字节
	Send(p []byte) error
	// Receive 阻塞读取最多 maxBytes 字节，可能返回半行、多行或空 chunk
	Receive(maxBytes int) ([]byte, error)
	// Close 关闭连接并唤醒阻塞中的 Receive，可重复调用
	Close() error
}

// TransportError 连接、发送或接收失败，终止读循环
type TransportError struct {
	Op  string // "connect", "send", "receive"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Open 按配置建立连接
func Open(ctx context.Context, cfg service.DeviceConfig) (Transport, error) {
	var (
		t   Transport
		err error
	)
	switch cfg.Transport {
	case service.TransportRFCOMM:
		var addr [6]byte
		addr, err = service.ParseDeviceAddress(cfg.Address)
		if err != nil {
			return nil, err
		}
		t, err = DialRFCOMM(ctx, addr, cfg.Channel)
	case service.TransportSerial:
		t, err = OpenSerial(cfg.SerialPort, cfg.BaudRate, cfg.ReadTimeout)
	case service.TransportWebsocket:
		t, err = DialWebsocket(ctx, cfg.WSURL)
	case service.TransportReplay:
		t, err = OpenReplay(cfg.ReplayFile)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	return t, nil
}
