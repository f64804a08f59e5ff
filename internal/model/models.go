package model

import (
	"fmt"
	"strconv"
)

// Window 是传感器的积分宽度 (采样数)，同时作为序列标识和缩放除数
type Window int64

// DefaultWindows 固件输出的四个窗口
var DefaultWindows = []Window{32, 128, 512, 2048}

// DefaultThresholds 固件 main.c 中每个窗口的触发阈值 (原始 ADC 累加值)
var DefaultThresholds = map[Window]int64{
	32:   940,
	128:  3100,
	512:  11550,
	2048: 43000,
}

func (w Window) String() string {
	return strconv.FormatInt(int64(w), 10)
}

// Label 图例中使用的名称，例如 "128 window"
func (w Window) Label() string {
	return fmt.Sprintf("%d window", w)
}

// Record 从一行 "<time> sec, window <window>: <value>" 中解析出的三元组
type Record struct {
	Time   int64  // 设备计时器秒数
	Window Window // 窗口宽度
	Value  int64  // 窗口内 ADC 偏差的累加值
}

func (r Record) String() string {
	return fmt.Sprintf("%d sec, window %d: %d", r.Time, r.Window, r.Value)
}

// Point 是绘图用的缩放点 (time, value/window)
type Point struct {
	Time  float64
	Value float64
}

// Update 是 "series updated" 事件，Points 是接收方独占的拷贝
type Update struct {
	Window Window
	Points []Point
}

// Latest 返回最新追加的点
func (u Update) Latest() (Point, bool) {
	if len(u.Points) == 0 {
		return Point{}, false
	}
	return u.Points[len(u.Points)-1], true
}
