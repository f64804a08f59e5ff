package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"loud-plotter/internal/service"
)

func TestWebsocketTransport_SplitsLargeFramesAndSends(t *testing.T) {
	received := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("12 sec, window 128: 4096\n"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("13 sec"))
		_, _, _ = conn.ReadMessage() // 等待客户端关闭
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr, err := DialWebsocket(context.Background(), wsURL)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Send([]byte("hello!!")))
	assert.Equal(t, "hello!!", <-received)

	var got []string
	for _, want := range []string{"12 sec, win", "dow 128: 40", "96\n", "13 sec"} {
		chunk, err := tr.Receive(11)
		require.NoError(t, err)
		got = append(got, string(chunk))
		assert.Equal(t, want, string(chunk))
	}
	assert.Len(t, got, 4)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	_, err = tr.Receive(11)
	assert.Error(t, err)
}

func TestDialWebsocket_Unreachable_ReturnsError(t *testing.T) {
	_, err := DialWebsocket(context.Background(), "ws://127.0.0.1:1/stream")
	require.Error(t, err)
}

func TestReplayTransport_ReadsThenEndOfReplay(t *testing.T) {
	tr := NewReplay(io.NopCloser(bytes.NewBufferString("1 sec, window 32: 960\n2 sec")))
	require.NoError(t, tr.Send([]byte("hello!!")))

	chunk, err := tr.Receive(8)
	require.NoError(t, err)
	assert.Equal(t, "1 sec, w", string(chunk))

	var rest []byte
	for {
		chunk, err := tr.Receive(8)
		if err != nil {
			assert.True(t, errors.Is(err, ErrEndOfReplay))
			break
		}
		rest = append(rest, chunk...)
	}
	assert.Equal(t, "indow 32: 960\n2 sec", string(rest))
}

func TestOpen_Replay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 sec, window 32: 960\n"), 0o644))

	tr, err := Open(context.Background(), service.DeviceConfig{Transport: service.TransportReplay, ReplayFile: path})
	require.NoError(t, err)
	defer tr.Close()
	chunk, err := tr.Receive(1024)
	require.NoError(t, err)
	assert.Equal(t, "1 sec, window 32: 960\n", string(chunk))
}

func TestOpen_MissingReplayFile_ReturnsConnectError(t *testing.T) {
	_, err := Open(context.Background(), service.DeviceConfig{Transport: service.TransportReplay, ReplayFile: "/does/not/exist"})
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "connect", transportErr.Op)
}

func TestOpen_UnknownTransport_ReturnsError(t *testing.T) {
	_, err := Open(context.Background(), service.DeviceConfig{Transport: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

type fakeSerialPort struct {
	reads  []step
	writes bytes.Buffer
	closed int
	clock  time.Time
}

func (p *fakeSerialPort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, os.ErrClosed
	}
	s := p.reads[0]
	p.reads = p.reads[1:]
	p.clock = p.clock.Add(s.took)
	return copy(b, s.chunk), s.err
}

func (p *fakeSerialPort) Write(b []byte) (int, error) { return p.writes.Write(b) }

func (p *fakeSerialPort) Close() error {
	p.closed++
	return nil
}

func newFakeSerial(timeout time.Duration, reads ...step) (*serialTransport, *fakeSerialPort) {
	port := &fakeSerialPort{reads: reads, clock: time.Unix(0, 0)}
	tr := newSerialTransport(port, timeout)
	tr.now = func() time.Time { return port.clock }
	return tr, port
}

func TestSerialTransport_TimeoutIsEmptyChunk(t *testing.T) {
	tr, port := newFakeSerial(500*time.Millisecond,
		step{chunk: []byte("1 sec")},
		step{err: io.EOF, took: 500 * time.Millisecond},
		step{chunk: []byte(", window 32: 960\n")},
	)

	require.NoError(t, tr.Send([]byte("hello!!")))
	assert.Equal(t, "hello!!", port.writes.String())

	chunk, err := tr.Receive(64)
	require.NoError(t, err)
	assert.Equal(t, "1 sec", string(chunk))

	chunk, err = tr.Receive(64)
	require.NoError(t, err)
	assert.Empty(t, chunk)

	chunk, err = tr.Receive(64)
	require.NoError(t, err)
	assert.Equal(t, ", window 32: 960\n", string(chunk))

	_, err = tr.Receive(64)
	assert.ErrorIs(t, err, os.ErrClosed)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, port.closed)
}

func TestSerialTransport_ImmediateEOFs_ReportHangup(t *testing.T) {
	tr, _ := newFakeSerial(500*time.Millisecond,
		step{err: io.EOF},
		step{err: io.EOF},
		step{err: io.EOF},
	)

	for i := 0; i < maxEarlyEOFs-1; i++ {
		chunk, err := tr.Receive(64)
		require.NoError(t, err)
		assert.Empty(t, chunk)
	}
	_, err := tr.Receive(64)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSerialTransport_ImmediateEOFCountResetByData(t *testing.T) {
	tr, _ := newFakeSerial(500*time.Millisecond,
		step{err: io.EOF},
		step{err: io.EOF},
		step{chunk: []byte("1 sec\n")},
		step{err: io.EOF},
		step{err: io.EOF, took: 400 * time.Millisecond},
		step{err: io.EOF},
	)

	for i := 0; i < 6; i++ {
		_, err := tr.Receive(64)
		require.NoError(t, err, "read %d", i)
	}
}

func TestSerialTransport_EOFWithoutTimeout_ReportsHangup(t *testing.T) {
	tr, _ := newFakeSerial(0, step{err: io.EOF, took: time.Second})

	_, err := tr.Receive(64)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestConnector_SerialHangup_ReturnsTransportError(t *testing.T) {
	tr, _ := newFakeSerial(500*time.Millisecond,
		step{chunk: []byte("1 sec, window 32: 960\n")},
		step{err: io.EOF},
		step{err: io.EOF},
		step{err: io.EOF},
	)
	c := NewConnector(tr, service.DeviceConfig{ReadSize: 64}, zaptest.NewLogger(t), service.NewMetrics())

	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background()) }()

	assert.Equal(t, "1 sec, window 32: 960\n", <-c.GetLineChannel())
	err := <-errCh
	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "receive", tErr.Op)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
