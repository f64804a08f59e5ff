package api

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// replayTransport 回放抓取下来的原始数据流，用于离线出图
type replayTransport struct {
	r         io.ReadCloser
	closeOnce sync.Once
	closeErr  error
}

// OpenReplay 打开回放文件
func OpenReplay(path string) (Transport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay file")
	}
	return NewReplay(f), nil
}

// NewReplay 回放任意 reader
func NewReplay(r io.ReadCloser) Transport {
	return &replayTransport{r: r}
}

// Send 回放没有设备可写，丢弃
func (t *replayTransport) Send(p []byte) error {
	return nil
}

func (t *replayTransport) Receive(maxBytes int) ([]byte, error) {
	buf := make([]byte, maxBytes)
	n, err := t.r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF {
		return nil, ErrEndOfReplay
	}
	return buf[:0], err
}

func (t *replayTransport) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.r.Close() })
	return t.closeErr
}
