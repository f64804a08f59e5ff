package api

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// 连续这么多次提前返回的 EOF 视为设备挂断
const maxEarlyEOFs = 3

// serialPort 是 *serial.Port 用到的方法，便于测试替换
type serialPort interface {
	io.ReadWriteCloser
}

// serialTransport 已绑定的 RFCOMM tty 或 USB 串口
type serialTransport struct {
	port        serialPort
	readTimeout time.Duration
	now         func() time.Time
	earlyEOFs   int
	closeOnce   sync.Once
	closeErr    error
}

// OpenSerial 打开串口；readTimeout 到期时 Receive 返回空 chunk
func OpenSerial(name string, baud int, readTimeout time.Duration) (Transport, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", name)
	}
	return newSerialTransport(port, readTimeout), nil
}

func newSerialTransport(port serialPort, readTimeout time.Duration) *serialTransport {
	return &serialTransport{port: port, readTimeout: readTimeout, now: time.Now}
}

func (t *serialTransport) Send(p []byte) error {
	_, err := t.port.Write(p)
	return err
}

// Receive 读超时在 posix 上表现为 0 字节 + io.EOF，返回空 chunk
// 挂断同样是 0 字节 + io.EOF，但会立即返回，据此区分
func (t *serialTransport) Receive(maxBytes int) ([]byte, error) {
	buf := make([]byte, maxBytes)
	start := t.now()
	n, err := t.port.Read(buf)
	if n > 0 {
		t.earlyEOFs = 0
		return buf[:n], nil
	}
	if err != io.EOF {
		return nil, err
	}
	if t.readTimeout <= 0 {
		// 无超时的阻塞读不会返回 EOF，除非设备已断开
		return nil, errors.Wrap(io.ErrUnexpectedEOF, "serial port hung up")
	}
	// tarm/serial 把超时换算成 VTIME (0.1s 为单位)，留出一半的余量
	if t.now().Sub(start) >= effectiveTimeout(t.readTimeout)/2 {
		t.earlyEOFs = 0
		return buf[:0], nil
	}
	t.earlyEOFs++
	if t.earlyEOFs >= maxEarlyEOFs {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "serial port hung up after %d immediate EOFs", t.earlyEOFs)
	}
	return buf[:0], nil
}

func (t *serialTransport) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.port.Close() })
	return t.closeErr
}

// effectiveTimeout 与 tarm/serial 的 VTIME 取值一致：按 0.1s 截断，范围 [1, 255]
func effectiveTimeout(d time.Duration) time.Duration {
	ds := d / (100 * time.Millisecond)
	switch {
	case ds < 1:
		ds = 1
	case ds > 255:
		ds = 255
	}
	return ds * 100 * time.Millisecond
}
