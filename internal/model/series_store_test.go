package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeriesStore_DefaultWindows_EmptyAndSorted(t *testing.T) {
	s := NewSeriesStore([]Window{2048, 32, 512, 128, 32}, 0)
	assert.Equal(t, []Window{32, 128, 512, 2048}, s.Windows())
	for _, w := range s.Windows() {
		assert.True(t, s.Has(w))
		assert.Empty(t, s.Points(w))
	}
	assert.False(t, s.Has(999))
	assert.Nil(t, s.Points(999))
}

func TestAppend_UnknownWindow_ReturnsFalse(t *testing.T) {
	s := NewSeriesStore(DefaultWindows, 0)
	assert.False(t, s.Append(64, Point{Time: 1, Value: 1}))
	for w, pts := range s.Snapshot() {
		assert.Empty(t, pts, "window %d", w)
	}
}

func TestAppend_PreservesOrder(t *testing.T) {
	s := NewSeriesStore(DefaultWindows, 0)
	for i := 0; i < 5; i++ {
		require.True(t, s.Append(32, Point{Time: float64(i), Value: float64(i * 10)}))
	}
	pts := s.Points(32)
	require.Len(t, pts, 5)
	for i, p := range pts {
		assert.Equal(t, float64(i), p.Time)
	}
}

func TestAppend_MaxPoints_DropsOldest(t *testing.T) {
	s := NewSeriesStore(DefaultWindows, 3)
	for i := 1; i <= 5; i++ {
		s.Append(128, Point{Time: float64(i)})
	}
	assert.Equal(t, []Point{{Time: 3}, {Time: 4}, {Time: 5}}, s.Points(128))
	assert.Equal(t, 3, s.Len(128))
}

func TestAppend_MaxPointsOne_KeepsLatest(t *testing.T) {
	s := NewSeriesStore(DefaultWindows, 1)
	s.Append(32, Point{Time: 1})
	s.Append(32, Point{Time: 2})
	assert.Equal(t, []Point{{Time: 2}}, s.Points(32))
}

func TestPoints_ReturnsCopy(t *testing.T) {
	s := NewSeriesStore(DefaultWindows, 0)
	s.Append(32, Point{Time: 1, Value: 2})
	pts := s.Points(32)
	pts[0].Value = 100
	assert.Equal(t, 2.0, s.Points(32)[0].Value)

	snap := s.Snapshot()
	snap[32][0].Value = 100
	assert.Equal(t, 2.0, s.Points(32)[0].Value)
}

func TestSeriesStore_ConcurrentAppendAndSnapshot(t *testing.T) {
	s := NewSeriesStore(DefaultWindows, 0)
	var wg sync.WaitGroup
	for _, w := range DefaultWindows {
		wg.Add(1)
		go func(w Window) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Append(w, Point{Time: float64(i)})
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, pts := range s.Snapshot() {
				for j := 1; j < len(pts); j++ {
					if pts[j].Time < pts[j-1].Time {
						t.Errorf("out of order snapshot")
						return
					}
				}
			}
		}
	}()
	wg.Wait()
	for _, w := range DefaultWindows {
		assert.Equal(t, 200, s.Len(w))
	}
}
