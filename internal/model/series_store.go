package model

import (
	"slices"
	"sync"
)

// Bucket 单个窗口的点序列，只追加
type Bucket struct {
	Window Window
	points []Point
}

// SeriesStore 按窗口标识索引的 Bucket 集合
// 读写互斥：渲染只拿到拷贝，追加与遍历不会交错
type SeriesStore struct {
	mu        sync.RWMutex
	buckets   map[Window]*Bucket
	windows   []Window // 升序
	maxPoints int      // 每个 Bucket 最多保留的点数，0 表示不限制
}

// NewSeriesStore 创建空的 SeriesStore
func NewSeriesStore(windows []Window, maxPoints int) *SeriesStore {
	if maxPoints < 0 {
		maxPoints = 0
	}
	s := &SeriesStore{
		buckets:   make(map[Window]*Bucket, len(windows)),
		maxPoints: maxPoints,
	}
	for _, w := range windows {
		if _, ok := s.buckets[w]; ok {
			continue
		}
		s.buckets[w] = &Bucket{Window: w}
		s.windows = append(s.windows, w)
	}
	slices.Sort(s.windows)
	return s
}

// Has 判断窗口是否是已知标识
func (s *SeriesStore) Has(w Window) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[w]
	return ok
}

// Windows 返回所有已知窗口 (升序)
func (s *SeriesStore) Windows() []Window {
	return slices.Clone(s.windows)
}

// MaxPoints 返回每个 Bucket 的容量上限
func (s *SeriesStore) MaxPoints() int {
	return s.maxPoints
}

// Append 向窗口 w 追加一个点；未知窗口返回 false
// 设置了 maxPoints 时丢弃最旧的点
func (s *SeriesStore) Append(w Window, p Point) bool {
	_, ok := s.append(w, p)
	return ok
}

// append 追加并在同一把锁内返回快照
func (s *SeriesStore) append(w Window, p Point) ([]Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[w]
	if !ok {
		return nil, false
	}
	if s.maxPoints > 0 && len(b.points) >= s.maxPoints {
		n := copy(b.points, b.points[len(b.points)-s.maxPoints+1:])
		b.points = b.points[:n]
	}
	b.points = append(b.points, p)
	return slices.Clone(b.points), true
}

// Points 返回窗口 w 的点序列拷贝
func (s *SeriesStore) Points(w Window) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[w]
	if !ok {
		return nil
	}
	return slices.Clone(b.points)
}

// Len 返回窗口 w 当前的点数
func (s *SeriesStore) Len(w Window) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.buckets[w]; ok {
		return len(b.points)
	}
	return 0
}

// Snapshot 返回所有 Bucket 的拷贝
func (s *SeriesStore) Snapshot() map[Window][]Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Window][]Point, len(s.buckets))
	for w, b := range s.buckets {
		out[w] = slices.Clone(b.points)
	}
	return out
}
