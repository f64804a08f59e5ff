package render

import (
	"context"

	"go.uber.org/zap"

	"loud-plotter/internal/model"
	"loud-plotter/internal/service"
)

// Renderer 消费更新事件并重绘
type Renderer interface {
	// Redraw 用每个更新中的完整点序列替换对应窗口的曲线，然后重绘一次
	Redraw(updates ...model.Update) error
}

// Loop 把 DataEngine 的更新事件送给 Renderer
type Loop struct {
	updates  <-chan model.Update
	renderer Renderer
	logger   *zap.Logger
	metrics  *service.Metrics
}

// NewLoop 创建渲染循环
func NewLoop(updates <-chan model.Update, renderer Renderer, logger *zap.Logger, metrics *service.Metrics) *Loop {
	return &Loop{
		updates:  updates,
		renderer: renderer,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run 直到更新通道关闭或 ctx 取消；渲染失败只记录，不退出
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case u, ok := <-l.updates:
			if !ok {
				l.logger.Info("Render loop stopped, update stream closed")
				return nil
			}
			batch := l.coalesce(u)
			if err := l.renderer.Redraw(batch...); err != nil {
				l.metrics.RenderErrors.Inc()
				l.logger.Warn("Chart redraw failed", zap.Error(err))
				continue
			}
			l.metrics.Redraws.Inc()
		case <-ctx.Done():
			l.logger.Info("Render loop stopped")
			return nil
		}
	}
}

// coalesce 取出已经排队的更新，每个窗口只保留最新的一条
// 每条更新都带完整序列，所以旧的那条可以直接丢掉
func (l *Loop) coalesce(first model.Update) []model.Update {
	batch := []model.Update{first}
	index := map[model.Window]int{first.Window: 0}
	for {
		select {
		case u, ok := <-l.updates:
			if !ok {
				return batch
			}
			if i, seen := index[u.Window]; seen {
				batch[i] = u
				continue
			}
			index[u.Window] = len(batch)
			batch = append(batch, u)
		default:
			return batch
		}
	}
}
