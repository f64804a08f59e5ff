package data

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"loud-plotter/internal/model"
	"loud-plotter/internal/service"
	"loud-plotter/internal/stream"
)

// DataEngine 负责接收完整行，解析成 Record，累加到 SeriesStore，并把更新事件发送给渲染层
type DataEngine struct {
	lineChan   <-chan string
	updateChan chan model.Update
	store      *model.SeriesStore
	thresholds map[model.Window]int64 // 固件阈值，只用于标记 loud 事件
	logger     *zap.Logger
	metrics    *service.Metrics
}

// NewDataEngine 创建并初始化 DataEngine
func NewDataEngine(
	lineChan <-chan string, // Connector 的行通道
	store *model.SeriesStore,
	thresholds map[model.Window]int64,
	logger *zap.Logger,
	metrics *service.Metrics,
) *DataEngine {
	return &DataEngine{
		lineChan:   lineChan,
		updateChan: make(chan model.Update, 256),
		store:      store,
		thresholds: thresholds,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start 启动数据处理循环，行通道关闭或 ctx 取消时返回并关闭更新通道
func (de *DataEngine) Start(ctx context.Context) error {
	defer close(de.updateChan)
	de.logger.Info("Data Engine started, monitoring line stream...", zap.Stringers("Windows", de.store.Windows()))

	for {
		select {
		case line, ok := <-de.lineChan:
			if !ok {
				de.logger.Info("Data Engine stopped, line stream closed")
				return nil
			}
			update, ok := de.ProcessLine(line)
			if !ok {
				continue
			}
			select {
			case de.updateChan <- update:
			case <-ctx.Done():
				return nil
			}
		case <-ctx.Done():
			de.logger.Info("Data Engine stopped")
			return nil
		}
	}
}

// ProcessLine 解析并累加一行；格式错误和未知窗口都丢弃该行，不返回错误
func (de *DataEngine) ProcessLine(line string) (model.Update, bool) {
	de.logger.Debug("Line received", zap.String("Line", strings.TrimRight(line, "\r\n")))

	rec, err := stream.Parse(line)
	if err != nil {
		var malformed *stream.MalformedRecordError
		if errors.As(err, &malformed) {
			de.metrics.MalformedRecords.Inc()
			de.logger.Warn("Dropping malformed line", zap.Error(err), zap.Int("Fields", malformed.Fields))
		}
		return model.Update{}, false
	}

	update, ok := model.Accept(rec, de.store)
	if !ok {
		de.metrics.UnknownWindows.Inc()
		de.logger.Debug("Dropping record with untracked window", zap.Stringer("Record", rec))
		return model.Update{}, false
	}
	de.metrics.RecordsAccepted.WithLabelValues(rec.Window.String()).Inc()

	if threshold, ok := de.thresholds[rec.Window]; ok && rec.Value > threshold {
		de.metrics.LoudEvents.WithLabelValues(rec.Window.String()).Inc()
		de.logger.Info("Loud event",
			zap.Int64("Time", rec.Time),
			zap.Stringer("Window", rec.Window),
			zap.Int64("Value", rec.Value),
			zap.Int64("Threshold", threshold))
	}
	return update, true
}

// GetUpdateChannel 供渲染层调用以获取更新事件
func (de *DataEngine) GetUpdateChannel() <-chan model.Update {
	return de.updateChan
}

// GetStore 返回 DataEngine 写入的 SeriesStore
func (de *DataEngine) GetStore() *model.SeriesStore {
	return de.store
}
