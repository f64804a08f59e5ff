//go:build linux

package api

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"loud-plotter/internal/service"
)

// rfcommTransport 蓝牙 RFCOMM 流式 socket
type rfcommTransport struct {
	file      *os.File
	closeOnce sync.Once
	closeErr  error
}

// connect 轮询间隔，决定 ctx 取消后多久放弃连接
const connectPollInterval = 100 * time.Millisecond

// DialRFCOMM 连接到 {addr, channel}，ctx 取消时中止连接
func DialRFCOMM(ctx context.Context, addr [6]byte, channel int) (Transport, error) {
	// 非阻塞 fd：connect 可以轮询中止，之后交给 runtime poller，Close 才能唤醒阻塞的 Read
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, errors.Wrap(err, "rfcomm socket")
	}

	sa := &unix.SockaddrRFCOMM{Channel: uint8(channel)}
	// bdaddr_t 是小端序，与书写顺序相反
	for i := range addr {
		sa.Addr[i] = addr[len(addr)-1-i]
	}

	if err := connectNonblock(ctx, fd, sa); err != nil {
		_ = unix.Close(fd)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(err, "rfcomm connect %s channel %d", service.FormatDeviceAddress(addr), channel)
	}

	name := "rfcomm:" + service.FormatDeviceAddress(addr)
	return &rfcommTransport{file: os.NewFile(uintptr(fd), name)}, nil
}

// connectNonblock 发起非阻塞 connect，等待可写后读取 SO_ERROR
func connectNonblock(ctx context.Context, fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS {
		return err
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, int(connectPollInterval/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "poll")
		}
		if n == 0 {
			continue
		}
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return errors.Wrap(err, "getsockopt SO_ERROR")
		}
		if soErr != 0 {
			return unix.Errno(soErr)
		}
		return nil
	}
}

func (t *rfcommTransport) Send(p []byte) error {
	_, err := t.file.Write(p)
	return err
}

func (t *rfcommTransport) Receive(maxBytes int) ([]byte, error) {
	buf := make([]byte, maxBytes)
	n, err := t.file.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (t *rfcommTransport) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.file.Close() })
	return t.closeErr
}
