package api

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"loud-plotter/internal/service"
	"loud-plotter/internal/stream"
)

// Connector 负责驱动 Transport 的读循环，把字节流重组成行
type Connector struct {
	transport   Transport
	assembler   *stream.Assembler
	greeting    string
	readSize    int
	lineChannel chan string
	logger      *zap.Logger
	metrics     *service.Metrics
}

// NewConnector 创建 Connector；Connector 拥有 transport，Start 返回时关闭它
func NewConnector(t Transport, cfg service.DeviceConfig, logger *zap.Logger, metrics *service.Metrics) *Connector {
	readSize := cfg.ReadSize
	if readSize <= 0 {
		readSize = 1024
	}
	return &Connector{
		transport:   t,
		assembler:   stream.NewAssembler(),
		greeting:    cfg.Greeting,
		readSize:    readSize,
		lineChannel: make(chan string, 64),
		logger:      logger,
		metrics:     metrics,
	}
}

// Start 发送问候语，然后持续读取直到 ctx 取消或传输失败
// ctx 取消返回 nil；传输失败返回 *TransportError
// 返回时关闭行通道
func (c *Connector) Start(ctx context.Context) error {
	defer close(c.lineChannel)
	defer c.transport.Close()

	// ctx 取消时关闭 transport，唤醒阻塞中的 Receive
	stop := context.AfterFunc(ctx, func() { _ = c.transport.Close() })
	defer stop()

	if c.greeting != "" {
		if err := c.transport.Send([]byte(c.greeting)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &TransportError{Op: "send", Err: err}
		}
		c.logger.Info("Greeting sent", zap.String("Greeting", c.greeting))
	}

	return c.readLoop(ctx)
}

// readLoop 持续读取 chunk 并输出完整行
func (c *Connector) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			c.logger.Info("Connector stopped")
			return nil
		}

		chunk, err := c.transport.Receive(c.readSize)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Connector stopped")
				return nil
			}
			if errors.Is(err, ErrEndOfReplay) {
				c.logger.Info("Replay finished", zap.Int("PendingBytes", c.assembler.Pending()))
				return nil
			}
			c.logger.Error("Error reading from transport", zap.Error(err))
			return &TransportError{Op: "receive", Err: err}
		}
		if len(chunk) == 0 {
			continue
		}
		c.metrics.ChunksReceived.Inc()
		c.metrics.BytesReceived.Add(float64(len(chunk)))

		lines, err := c.assembler.Feed(chunk)
		if err != nil {
			c.metrics.DecodeErrors.Inc()
			c.logger.Warn("Dropping undecodable chunk", zap.Error(err), zap.Binary("Chunk", chunk))
			continue
		}

		for line := range lines {
			c.metrics.LinesAssembled.Inc()
			select {
			case c.lineChannel <- line:
			case <-ctx.Done():
				c.logger.Info("Connector stopped")
				return nil
			}
		}
	}
}

// GetLineChannel 供 DataEngine 消费完整行
func (c *Connector) GetLineChannel() <-chan string {
	return c.lineChannel
}
